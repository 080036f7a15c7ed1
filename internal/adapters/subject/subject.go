// Package subject resolves property ids to the subject of a valuation.
package subject

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okian/comparo/internal/domain/model"
)

// Sentinel errors.
var (
	ErrSubjectNotFound  = fmt.Errorf("subject %w", model.ErrNotFound)
	ErrResolverDisabled = errors.New("subject lookup is not configured")
)

// Resolver looks up a subject property by id.
type Resolver interface {
	ResolveSubject(ctx context.Context, propertyID string) (model.SubjectRef, error)
}

// New returns an HTTP resolver for baseURL, or a disabled resolver when
// baseURL is empty.
func New(baseURL string, timeout time.Duration) Resolver {
	if strings.TrimSpace(baseURL) == "" {
		return noopResolver{}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &httpResolver{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type httpResolver struct {
	httpClient *http.Client
	baseURL    string
}

// ResolveSubject calls GET {baseURL}/properties/{id}.
func (r *httpResolver) ResolveSubject(ctx context.Context, propertyID string) (model.SubjectRef, error) {
	const op = "subject.ResolveSubject"

	endpoint := fmt.Sprintf("%s/properties/%s", r.baseURL, url.PathEscape(propertyID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.SubjectRef{}, fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return model.SubjectRef{}, fmt.Errorf("%s: failed to send request: %w", op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.SubjectRef{}, fmt.Errorf("%w: %s", ErrSubjectNotFound, propertyID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.SubjectRef{}, fmt.Errorf("%s: unexpected status code %d: %s", op, resp.StatusCode, string(body))
	}

	var s model.SubjectRef
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return model.SubjectRef{}, fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	if err := s.Validate(); err != nil {
		return model.SubjectRef{}, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

type noopResolver struct{}

func (noopResolver) ResolveSubject(context.Context, string) (model.SubjectRef, error) {
	return model.SubjectRef{}, ErrResolverDisabled
}

// MemoryResolver serves subjects registered with Put.
type MemoryResolver struct {
	mu       sync.RWMutex
	subjects map[string]model.SubjectRef
}

// NewMemoryResolver returns an empty MemoryResolver.
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{subjects: make(map[string]model.SubjectRef)}
}

// Put registers s under id.
func (m *MemoryResolver) Put(id string, s model.SubjectRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects[id] = s
}

// ResolveSubject returns the subject registered under propertyID.
func (m *MemoryResolver) ResolveSubject(_ context.Context, propertyID string) (model.SubjectRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[propertyID]
	if !ok {
		return model.SubjectRef{}, fmt.Errorf("%w: %s", ErrSubjectNotFound, propertyID)
	}
	return s, nil
}
