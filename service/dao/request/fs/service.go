package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"
	"github.com/viant/hitl/model/approval"
	"github.com/viant/hitl/service/dao"
)

// Service persists approval requests as JSON documents under a base URL. Any
// afs-supported scheme works (file, mem, s3, gs, ...), which makes the store
// usable both for durable deployments and in-memory tests.
type Service struct {
	baseURL string
	fs      afs.Service
	mu      sync.RWMutex
}

var _ dao.Service[string, approval.Request] = (*Service)(nil)

// New creates a filesystem-backed request store rooted at baseURL.
func New(baseURL string) (*Service, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	fsService := afs.New()
	ctx := context.Background()
	if exists, _ := fsService.Exists(ctx, baseURL); !exists {
		if err := fsService.Create(ctx, baseURL, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base location: %w", err)
		}
	}
	return &Service{
		baseURL: url.Normalize(baseURL, file.Scheme),
		fs:      fsService,
	}, nil
}

// Save persists a request.
func (s *Service) Save(ctx context.Context, request *approval.Request) error {
	if request == nil {
		return dao.ErrNilEntity
	}
	if request.ID == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	location := s.requestPath(request.ID)
	if err = s.fs.Upload(ctx, location, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save request to %s: %w", location, err)
	}
	return nil
}

// Load retrieves a request by id, nil when absent.
func (s *Service) Load(ctx context.Context, id string) (*approval.Request, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	location := s.requestPath(id)
	exists, err := s.fs.Exists(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to check request %s: %w", id, err)
	}
	if !exists {
		return nil, nil
	}
	data, err := s.fs.DownloadWithURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to read request %s: %w", id, err)
	}
	var request approval.Request
	if err = json.Unmarshal(data, &request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %s: %w", id, err)
	}
	return &request, nil
}

// Delete removes a request; deleting an absent request is a no-op.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	location := s.requestPath(id)
	if exists, _ := s.fs.Exists(ctx, location); !exists {
		return nil
	}
	if err := s.fs.Delete(ctx, location); err != nil {
		return fmt.Errorf("failed to delete request %s: %w", id, err)
	}
	return nil
}

// List returns all stored requests.
func (s *Service) List(ctx context.Context) ([]*approval.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objects, err := s.fs.List(ctx, s.baseURL, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	var requests []*approval.Request
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("error reading request file %s: %v", object.URL(), err)
			continue
		}
		var request approval.Request
		if err = json.Unmarshal(data, &request); err != nil {
			log.Printf("error unmarshaling request from %s: %v", object.URL(), err)
			continue
		}
		requests = append(requests, &request)
	}
	return requests, nil
}

func (s *Service) requestPath(id string) string {
	return url.Join(s.baseURL, id+".json")
}
