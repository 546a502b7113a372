package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DeafMist/devotion-feed/internal/config"
	"github.com/DeafMist/devotion-feed/internal/feed"
	"github.com/DeafMist/devotion-feed/internal/i18n"
	"github.com/DeafMist/devotion-feed/internal/listing"
	"github.com/DeafMist/devotion-feed/internal/logger"
	"github.com/DeafMist/devotion-feed/internal/models"
	"github.com/DeafMist/devotion-feed/internal/video"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sessions",
		Short:         "Read the published session feed from the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions newest first",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	listCmd.Flags().String("feed", "", "CSV export URL (defaults to SESSIONS_FEED_URL; empty uses the fallback dataset)")
	listCmd.Flags().String("lang", listing.AllLanguages, "Language filter: all, en or tl")
	listCmd.Flags().String("search", "", "Case-insensitive title/speaker search")
	listCmd.Flags().Int("limit", 0, "Maximum number of sessions (0 = unlimited)")
	listCmd.Flags().Bool("json", false, "Output JSON")

	thumbCmd := &cobra.Command{
		Use:   "thumbnail <link>",
		Short: "Show the video ID and thumbnail derived from a link",
		Args:  cobra.ExactArgs(1),
		RunE:  runThumbnail,
	}

	stringsCmd := &cobra.Command{
		Use:   "strings",
		Short: "Print the interface strings for a language",
		Args:  cobra.NoArgs,
		RunE:  runStrings,
	}
	stringsCmd.Flags().String("lang", string(i18n.Default), "Interface language: en or tl")

	rootCmd.AddCommand(listCmd, thumbCmd, stringsCmd)
	return rootCmd
}

func runList(cmd *cobra.Command, _ []string) error {
	feedURL, _ := cmd.Flags().GetString("feed")
	rawLang, _ := cmd.Flags().GetString("lang")
	search, _ := cmd.Flags().GetString("search")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	lang, ok := listing.ParseLanguage(rawLang)
	if !ok {
		return fmt.Errorf("--lang must be one of all, en, tl")
	}

	cfg, err := config.LoadFeed()
	if err != nil {
		return err
	}
	if feedURL == "" {
		feedURL = cfg.URL
	}

	loader := feed.NewLoader(feed.Options{
		URL:           feedURL,
		Timeout:       cfg.FetchTimeout,
		FallbackDelay: 0,
		Logger:        logger.NewWithWriter("sessions", cmd.ErrOrStderr(), os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")),
	})

	res, err := loader.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("load feed: %w", err)
	}

	view := listing.NewView(res.Sessions)
	view.SetLanguage(lang)
	view.SetSearch(search)

	items := view.Items()
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if res.Source == feed.SourceFallback {
		fmt.Fprintln(cmd.ErrOrStderr(), "showing fallback sessions")
	}
	return printSessions(out, items)
}

func printSessions(w io.Writer, sessions []models.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, i18n.Lookup(i18n.Default, "sessions.empty"))
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tLANG\tTITLE\tSPEAKER\tSCRIPTURE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Date, s.Language, s.Title, s.Speaker, s.Scripture)
	}
	return tw.Flush()
}

func runThumbnail(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	id, ok := video.ExtractID(args[0])
	if !ok {
		fmt.Fprintln(out, "id: -")
	} else {
		fmt.Fprintf(out, "id: %s\n", id)
	}
	_, err := fmt.Fprintf(out, "thumbnail: %s\n", video.Thumbnail(args[0]))
	return err
}

func runStrings(cmd *cobra.Command, _ []string) error {
	rawLang, _ := cmd.Flags().GetString("lang")
	lang, ok := models.ParseLanguage(rawLang)
	if !ok {
		return fmt.Errorf("--lang must be en or tl")
	}

	table := i18n.Strings(lang)
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, strings.TrimSpace(table[k]))
	}
	return tw.Flush()
}
