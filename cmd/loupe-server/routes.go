package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theimaginaryfoundation/loupe/analysis"
	"github.com/theimaginaryfoundation/loupe/analysis/cliutil"
)

type server struct {
	classifier   *analysis.ChunkedClassifier
	partitioner  *analysis.Partitioner
	minTopicSize int
	summary      cliutil.SummaryFlags
	maxTexts     int
	logger       *zap.Logger
}

func (s *server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/loupe")
	{
		api.POST("/classify", s.handleClassify)
		api.POST("/analyze", s.handleAnalyze)
	}
	return r
}

func (s *server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

type classifyRequest struct {
	Texts []string `json:"texts" binding:"required"`
}

type classifyResult struct {
	Text   string         `json:"text"`
	Label  analysis.Label `json:"label"`
	Scores []float64      `json:"scores"`
}

func (s *server) handleClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.checkSize(c, len(req.Texts)) {
		return
	}

	results := make([]classifyResult, len(req.Texts))
	for i, text := range req.Texts {
		res, err := s.classifier.Classify(c.Request.Context(), text)
		if err != nil {
			s.upstreamError(c, err)
			return
		}
		results[i] = classifyResult{Text: text, Label: res.Label, Scores: res.Scores}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type analyzeDocument struct {
	ID     string            `json:"id"`
	Text   string            `json:"text"`
	Fields map[string]string `json:"fields"`
}

type analyzeRequest struct {
	Documents    []analyzeDocument `json:"documents" binding:"required"`
	MinTopicSize int               `json:"min_topic_size"`
	Title        string            `json:"title"`
}

type analyzeResponse struct {
	Manifest  *analysis.RunManifest                        `json:"manifest"`
	Summary   []analysis.Field                             `json:"summary"`
	Topics    map[analysis.Label][]analysis.TopicFrequency `json:"topics"`
	Documents []*analysis.Document                         `json:"documents"`
}

func (s *server) handleAnalyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.checkSize(c, len(req.Documents)) {
		return
	}
	minTopicSize := s.minTopicSize
	if req.MinTopicSize != 0 {
		if req.MinTopicSize < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_topic_size must be >= 1"})
			return
		}
		minTopicSize = req.MinTopicSize
	}

	docs, err := toDocuments(req.Documents)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := analysis.ClassifyDocuments(ctx, s.classifier, docs, analysis.ClassifyOptions{}); err != nil {
		s.upstreamError(c, err)
		return
	}

	summary := s.summary.Options("")
	summary.Title = cliutil.FirstNonEmpty(req.Title, s.summary.Title, "api")
	a, err := analysis.Analyze(ctx, s.partitioner, docs, analysis.AnalyzeOptions{
		MinTopicSize: minTopicSize,
		Summary:      &summary,
	})
	if err != nil {
		s.logger.Error("analyze failed", zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	topics := make(map[analysis.Label][]analysis.TopicFrequency, len(a.Result.Topics))
	for l, tr := range a.Result.Topics {
		topics[l] = tr.Frequencies
	}
	c.JSON(http.StatusOK, analyzeResponse{
		Manifest:  a.Manifest,
		Summary:   a.Summary,
		Topics:    topics,
		Documents: a.Result.All,
	})
}

// toDocuments rejects client ids given twice. Blank ids take the document's index, or a fresh
// uuid when a client already used that index as an id.
func toDocuments(in []analyzeDocument) ([]*analysis.Document, error) {
	docs := make([]*analysis.Document, len(in))
	taken := make(map[string]bool, len(in))
	for i, d := range in {
		docs[i] = toDocument(i, d)
		if strings.TrimSpace(d.ID) != "" {
			if taken[docs[i].ID] {
				return nil, fmt.Errorf("%w: %q", analysis.ErrDuplicateID, docs[i].ID)
			}
			taken[docs[i].ID] = true
		}
	}
	for i, d := range in {
		if strings.TrimSpace(d.ID) == "" && taken[docs[i].ID] {
			docs[i].ID = uuid.NewString()
		}
	}
	if err := analysis.CheckUniqueIDs(docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func toDocument(i int, d analyzeDocument) *analysis.Document {
	doc := &analysis.Document{ID: strings.TrimSpace(d.ID), Text: d.Text}
	if doc.ID == "" {
		doc.ID = strconv.Itoa(i)
	}
	names := make([]string, 0, len(d.Fields))
	for name := range d.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Fields = append(doc.Fields, analysis.Field{Name: name, Value: d.Fields[name]})
	}
	return doc
}

func (s *server) checkSize(c *gin.Context, n int) bool {
	switch {
	case n == 0:
		c.JSON(http.StatusBadRequest, gin.H{"error": "no texts"})
		return false
	case n > s.maxTexts:
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many texts", "max": s.maxTexts})
		return false
	}
	return true
}

func (s *server) upstreamError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	s.logger.Error("classification failed", zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
}
