package server

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/agenthands/lineage/internal/core/model"
	"github.com/agenthands/lineage/internal/logger"
	"github.com/agenthands/lineage/internal/pipeline"
)

type Catalog interface {
	Add(ctx context.Context, url string) (bool, error)
	List(ctx context.Context, statuses ...model.Status) ([]model.SourceDocument, error)
	Reset(ctx context.Context, url string) error
	ResetAll(ctx context.Context) (int, error)
	Counts(ctx context.Context) (map[model.Status]int, error)
}

type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (*pipeline.Summary, error)
}

type Server struct {
	Catalog Catalog
	Runner  Runner
	Decider *HTTPDecider
	Log     *logger.Logger

	// runs outlive the request that started them
	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	running bool
	last    *pipeline.Summary
	lastErr error
	done    chan struct{}
}

func NewServer(cat Catalog, runner Runner, decider *HTTPDecider, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	if decider == nil {
		decider = NewHTTPDecider(log)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Catalog: cat,
		Runner:  runner,
		Decider: decider,
		Log:     log,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Close cancels a run in progress and waits for it to stop.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.POST("/documents", s.AddDocuments)
	r.GET("/documents", s.ListDocuments)
	r.POST("/documents/reprocess", s.Reprocess)
	r.POST("/run", s.StartRun)
	r.GET("/run", s.RunStatus)
	r.GET("/conflicts", s.ListConflicts)
	r.POST("/conflicts/:id/decision", s.Decide)

	return r
}

type AddDocumentsRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

func (s *Server) AddDocuments(c *gin.Context) {
	var req AddDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	added := 0
	var rejected []string
	for _, u := range req.URLs {
		ok, err := s.Catalog.Add(c.Request.Context(), u)
		if err != nil {
			s.Log.Warn("rejected url", "url", u, "error", err)
			rejected = append(rejected, u)
			continue
		}
		if ok {
			added++
		}
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "rejected": rejected})
}

func (s *Server) ListDocuments(c *gin.Context) {
	var statuses []model.Status
	for _, raw := range c.QueryArray("status") {
		st, ok := model.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status " + raw})
			return
		}
		statuses = append(statuses, st)
	}

	docs, err := s.Catalog.List(c.Request.Context(), statuses...)
	if err != nil {
		s.Log.Error("failed to list documents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}
	counts, err := s.Catalog.Counts(c.Request.Context())
	if err != nil {
		s.Log.Error("failed to count documents", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
		return
	}
	if docs == nil {
		docs = []model.SourceDocument{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "counts": counts})
}

type ReprocessRequest struct {
	URLs []string `json:"urls"`
	All  bool     `json:"all"`
}

func (s *Server) Reprocess(c *gin.Context) {
	var req ReprocessRequest
	if err := c.ShouldBindJSON(&req); err != nil || (!req.All && len(req.URLs) == 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	if req.All {
		n, err := s.Catalog.ResetAll(ctx)
		if err != nil {
			s.Log.Error("failed to reset documents", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset documents"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reset": n})
		return
	}

	reset := 0
	var missing []string
	for _, u := range req.URLs {
		if err := s.Catalog.Reset(ctx, u); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				missing = append(missing, u)
				continue
			}
			s.Log.Error("failed to reset document", "url", u, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset documents"})
			return
		}
		reset++
	}
	c.JSON(http.StatusOK, gin.H{"reset": reset, "missing": missing})
}

type RunRequest struct {
	URLs   []string `json:"urls"`
	Force  bool     `json:"force"`
	DryRun bool     `json:"dry_run"`
}

// StartRun processes documents in the background; one run at a time.
func (s *Server) StartRun(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{"error": "a run is already in progress"})
		return
	}
	s.running = true
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		summary, err := s.Runner.Run(s.baseCtx, pipeline.RunOptions{URLs: req.URLs, Force: req.Force, DryRun: req.DryRun})
		if err != nil {
			s.Log.Error("run failed", "error", err)
		}
		s.mu.Lock()
		s.running = false
		s.last, s.lastErr = summary, err
		s.mu.Unlock()
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) RunStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := gin.H{"running": s.running, "summary": s.last}
	if s.lastErr != nil {
		resp["error"] = s.lastErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ListConflicts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conflicts": s.Decider.Pending()})
}

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

func (s *Server) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	dec, ok := model.ParseDecision(req.Decision)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown decision " + req.Decision})
		return
	}

	switch err := s.Decider.Answer(c.Param("id"), dec); {
	case errors.Is(err, ErrUnknownDecision):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrAlreadyAnswered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "accepted", "decision": dec})
	}
}
