package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/autotester/autotester/internal/identity"
)

// Memory is an in-memory Store used by tests and by dry runs, where
// intended mutations are logged instead of being sent to the tracker.
type Memory struct {
	mu           sync.Mutex
	nextNumber   int
	issues       map[int]*memoryIssue
	mutations    []string
	logMutations bool
}

type memoryIssue struct {
	issue TrackedIssue
	open  bool
}

// NewMemory creates an empty in-memory issue store.
func NewMemory() *Memory {
	return &Memory{
		nextNumber: 1,
		issues:     make(map[int]*memoryIssue),
	}
}

// NewDryRun creates an in-memory store that logs every mutation, for runs
// that must not touch the real tracker.
func NewDryRun() *Memory {
	m := NewMemory()
	m.logMutations = true
	return m
}

// Seed inserts an open issue directly, bypassing mutation recording.
func (m *Memory) Seed(issue TrackedIssue) TrackedIssue {
	m.mu.Lock()
	defer m.mu.Unlock()
	if issue.Number == 0 {
		issue.Number = m.nextNumber
		m.nextNumber++
	} else if issue.Number >= m.nextNumber {
		m.nextNumber = issue.Number + 1
	}
	m.issues[issue.Number] = &memoryIssue{issue: issue, open: true}
	return issue
}

// Mutations returns a description of every mutation applied, in order.
func (m *Memory) Mutations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.mutations))
	copy(out, m.mutations)
	return out
}

// OpenCount returns the number of currently open issues.
func (m *Memory) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.issues {
		if entry.open {
			count++
		}
	}
	return count
}

// Get returns the issue with the given number and whether it is open.
func (m *Memory) Get(number int) (TrackedIssue, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.issues[number]
	if !ok {
		return TrackedIssue{}, false, false
	}
	return entry.issue, entry.open, true
}

func (m *Memory) record(format string, args ...any) {
	entry := fmt.Sprintf(format, args...)
	m.mutations = append(m.mutations, entry)
	if m.logMutations {
		log.Printf("[dry-run] %s", entry)
	}
}

func (m *Memory) ListOpen(ctx context.Context, marker string) ([]TrackedIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var open []TrackedIssue
	for _, entry := range m.issues {
		if entry.open && hasLabel(entry.issue.Labels, marker) {
			open = append(open, entry.issue)
		}
	}
	return open, nil
}

func (m *Memory) Create(ctx context.Context, key identity.Key, title string, labels []string, body string) (TrackedIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Same re-check-before-create policy as the real adapter.
	for _, entry := range m.issues {
		if !entry.open {
			continue
		}
		existingKey, err := entry.issue.Key()
		if err == nil && existingKey == key {
			return entry.issue, nil
		}
	}

	issue := TrackedIssue{
		Number: m.nextNumber,
		Title:  title,
		Labels: labels,
		Body:   body,
	}
	m.nextNumber++
	m.issues[issue.Number] = &memoryIssue{issue: issue, open: true}
	m.record("create #%d %q labels=%v", issue.Number, title, labels)
	return issue, nil
}

func (m *Memory) Update(ctx context.Context, issue TrackedIssue, labels []string, body string) (TrackedIssue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.issues[issue.Number]
	if !ok {
		return TrackedIssue{}, fmt.Errorf("%w: issue #%d does not exist", ErrFatal, issue.Number)
	}
	if !entry.open {
		// Updating an issue closed out from under us is not an error.
		return entry.issue, nil
	}

	entry.issue.Labels = labels
	entry.issue.Body = body
	m.record("update #%d labels=%v", issue.Number, labels)
	return entry.issue, nil
}

func (m *Memory) Close(ctx context.Context, issue TrackedIssue, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.issues[issue.Number]
	if !ok {
		return fmt.Errorf("%w: issue #%d does not exist", ErrFatal, issue.Number)
	}
	entry.open = false
	m.record("close #%d comment=%q", issue.Number, comment)
	return nil
}

func (m *Memory) Reopen(ctx context.Context, issue TrackedIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.issues[issue.Number]
	if !ok {
		return fmt.Errorf("%w: issue #%d does not exist", ErrFatal, issue.Number)
	}
	entry.open = true
	m.record("reopen #%d", issue.Number)
	return nil
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}
