package feed

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/devotion-feed/internal/models"
)

//go:embed fallback.yaml
var fallbackYAML []byte

var fallbackSessions = sync.OnceValues(func() ([]models.Session, error) {
	var sessions []models.Session
	if err := yaml.Unmarshal(fallbackYAML, &sessions); err != nil {
		return nil, fmt.Errorf("decode fallback dataset: %w", err)
	}
	return sessions, nil
})

// Fallback returns a copy of the hand-authored dataset used when the live
// feed is unset or unreachable.
func Fallback() []models.Session {
	sessions, err := fallbackSessions()
	if err != nil {
		panic(err)
	}
	out := make([]models.Session, len(sessions))
	copy(out, sessions)
	return out
}
