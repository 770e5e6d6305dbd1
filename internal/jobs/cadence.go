package jobs

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// cadenceParser accepts both standard 5-field and seconds-prefixed 6-field
// cron expressions, mirroring nexus's internal/tasks.cronParser
// (internal/tasks/scheduler.go) — the same library, the same optional-
// seconds field, since this domain's recurring jobs have no stricter
// cadence-precision requirement than nexus's scheduled tasks do.
var cadenceParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// cadenceToken matches a trailing "cron(<expr>)" directive in a recurring
// job's Description — the grammar spec.md §9's Open Question on cadence
// syntax asks an implementation to define; this package resolves it as a
// regex-captured parenthesized suffix rather than a natural-language
// parse, a deliberate narrowing the original leaves informal.
var cadenceToken = regexp.MustCompile(`\s*cron\(([^)]+)\)\s*$`)

// parseCadence extracts and parses description's trailing cron(...) token.
// It returns an error if no token is present or the expression inside it
// fails to parse — both are treated as "cadence parsing fails" in
// spec.md §8's boundary behavior.
func parseCadence(description string) (cron.Schedule, error) {
	m := cadenceToken.FindStringSubmatch(description)
	if m == nil {
		return nil, fmt.Errorf("jobs: no cron(...) cadence token in description")
	}
	sched, err := cadenceParser.Parse(strings.TrimSpace(m[1]))
	if err != nil {
		return nil, fmt.Errorf("jobs: parsing cadence %q: %w", m[1], err)
	}
	return sched, nil
}

// stripCadence removes the trailing cron(...) token, leaving the prompt
// text a recurring job's Description carries for the turn orchestrator.
func stripCadence(description string) string {
	return strings.TrimSpace(cadenceToken.ReplaceAllString(description, ""))
}
