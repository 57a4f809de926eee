package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
)

type DocumentLoader interface {
	Load(ctx context.Context) ([]model.Document, error)
}

type CollectionHandler struct {
	ingest *service.IngestService
	query  *service.QueryService
	loader DocumentLoader
}

// NewCollectionHandler builds the collection endpoints. loader may be nil,
// in which case ingest requests must carry their documents inline.
func NewCollectionHandler(ingest *service.IngestService, query *service.QueryService, loader DocumentLoader) *CollectionHandler {
	return &CollectionHandler{ingest: ingest, query: query, loader: loader}
}

type ingestDocument struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Format   string                 `json:"format"`
	Metadata map[string]interface{} `json:"metadata"`
}

type ingestRequest struct {
	Documents []ingestDocument `json:"documents"`
}

type searchRequest struct {
	Query  string                 `json:"query"`
	TopK   int                    `json:"top_k"`
	Filter map[string]interface{} `json:"filter"`
}

type answerRequest struct {
	searchRequest
	RequireResults *bool `json:"require_results"`
}

// Ingest indexes the inline documents of the request body, or the whole
// configured source when the body lists none.
func (h *CollectionHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, errcode.ErrInvalid, "invalid request")
			return
		}
	}
	docs, err := h.documents(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	report, err := h.ingest.Ingest(c.Request.Context(), c.Param("name"), docs)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, report)
}

func (h *CollectionHandler) documents(ctx context.Context, req ingestRequest) ([]model.Document, error) {
	if len(req.Documents) == 0 {
		if h.loader == nil {
			return nil, fmt.Errorf("%w: no documents and no source configured", appErr.ErrInvalid)
		}
		return h.loader.Load(ctx)
	}
	docs := make([]model.Document, 0, len(req.Documents))
	for i, item := range req.Documents {
		if strings.TrimSpace(item.ID) == "" {
			return nil, fmt.Errorf("%w: documents[%d] has no id", appErr.ErrInvalid, i)
		}
		format := model.DocumentFormat(item.Format)
		if format == "" {
			format = model.DocumentFormatText
		}
		if format != model.DocumentFormatText && format != model.DocumentFormatMarkdown {
			return nil, fmt.Errorf("%w: documents[%d] format %q is not accepted inline", appErr.ErrInvalid, i, item.Format)
		}
		docs = append(docs, model.Document{
			ID:       item.ID,
			Text:     item.Text,
			Format:   format,
			Metadata: item.Metadata,
		})
	}
	return docs, nil
}

func (h *CollectionHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	results, err := h.query.Search(c.Request.Context(), service.SearchRequest{
		Query:      req.Query,
		Collection: c.Param("name"),
		TopK:       req.TopK,
		Filter:     req.Filter,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	if results == nil {
		results = []model.ScoredChunk{}
	}
	response.Success(c, gin.H{"results": results})
}

func (h *CollectionHandler) Answer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.query.Answer(c.Request.Context(), service.AnswerRequest{
		SearchRequest: service.SearchRequest{
			Query:      req.Query,
			Collection: c.Param("name"),
			TopK:       req.TopK,
			Filter:     req.Filter,
		},
		RequireResults: req.RequireResults,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

func (h *CollectionHandler) DeleteDocument(c *gin.Context) {
	documentID := strings.TrimSpace(c.Query("id"))
	if documentID == "" {
		response.Error(c, errcode.ErrInvalid, "document id is required")
		return
	}
	if err := h.ingest.DeleteDocument(c.Request.Context(), c.Param("name"), documentID); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"document_id": documentID})
}
