package pipeline

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/agenthands/lineage/internal/core/model"
)

// Result is one document's outcome in a run.
type Result struct {
	URL       string             `json:"url"`
	Status    model.Status       `json:"status"`
	Reason    string             `json:"reason,omitempty"`
	PersonID  string             `json:"person_id,omitempty"`
	Created   bool               `json:"created,omitempty"`
	Retries   int                `json:"retries,omitempty"`
	Warnings  []string           `json:"warnings,omitempty"`
	Conflicts model.ConflictSet  `json:"conflicts,omitempty"`
	Audit     []model.AuditEntry `json:"audit,omitempty"`
}

// Summary collects every document's result; workers add to it concurrently.
type Summary struct {
	mu       sync.Mutex
	Results  []Result  `json:"results"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

func NewSummary() *Summary {
	return &Summary{Started: time.Now()}
}

func (s *Summary) Add(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Results = append(s.Results, r)
}

// Finish stamps the end time and orders results by URL.
func (s *Summary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Finished = time.Now()
	sort.Slice(s.Results, func(i, j int) bool { return s.Results[i].URL < s.Results[j].URL })
}

func (s *Summary) Counts() map[model.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[model.Status]int{}
	for _, r := range s.Results {
		out[r.Status]++
	}
	return out
}

// Get returns the result for url.
func (s *Summary) Get(url string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.Results {
		if r.URL == url {
			return r, true
		}
	}
	return Result{}, false
}

// Write prints one line per document followed by the status totals.
func (s *Summary) Write(w io.Writer) error {
	s.mu.Lock()
	results := append([]Result(nil), s.Results...)
	s.mu.Unlock()

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tURL\tCONFLICTS\tDETAIL")
	for _, r := range results {
		detail := r.Reason
		if detail == "" && r.PersonID != "" {
			detail = "person " + r.PersonID
			if r.Created {
				detail += " (new)"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.Status, r.URL, len(r.Conflicts), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts := s.Counts()
	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, string(st))
	}
	sort.Strings(statuses)
	for _, st := range statuses {
		if _, err := fmt.Fprintf(w, "%s: %d\n", st, counts[model.Status(st)]); err != nil {
			return err
		}
	}
	return nil
}
