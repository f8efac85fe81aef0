package vectordb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"SecAssist/internal/modules/ai/domain/repository"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// collection field names, kept in sync with initial.NewMilvusClient
const (
	FieldID        = "id"
	FieldVector    = "vector"
	FieldSessionID = "session_id"
	FieldUserID    = "user_id"
	FieldRole      = "role"
	FieldCategory  = "category"
	FieldCreatedAt = "created_at" // unix millis
)

// MilvusMessageIndex repository.MessageIndex over a Milvus collection.
// Primary keys are decimal message ids; no message content is stored.
type MilvusMessageIndex struct {
	cli        mclient.Client
	collection string
	vectorDim  int
}

var _ repository.MessageIndex = (*MilvusMessageIndex)(nil)

func NewMilvusMessageIndex(cli mclient.Client, collection string, vectorDim int) (*MilvusMessageIndex, error) {
	if cli == nil {
		return nil, fmt.Errorf("milvus client is nil")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, fmt.Errorf("milvus collection is empty")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vector dim %d", vectorDim)
	}
	return &MilvusMessageIndex{cli: cli, collection: collection, vectorDim: vectorDim}, nil
}

func (s *MilvusMessageIndex) Upsert(ctx context.Context, items []repository.IndexItem) error {
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, 0, len(items))
	vectors := make([][]float32, 0, len(items))
	sessionIDs := make([]string, 0, len(items))
	userIDs := make([]string, 0, len(items))
	roles := make([]string, 0, len(items))
	categories := make([]string, 0, len(items))
	createdAts := make([]int64, 0, len(items))

	for _, it := range items {
		if it.MessageID <= 0 {
			return fmt.Errorf("index item missing message id")
		}
		if len(it.Vector) != s.vectorDim {
			return fmt.Errorf("vector dim mismatch for message %d: got %d want %d", it.MessageID, len(it.Vector), s.vectorDim)
		}
		ids = append(ids, RefForMessage(it.MessageID))
		vectors = append(vectors, it.Vector)
		sessionIDs = append(sessionIDs, it.SessionID)
		userIDs = append(userIDs, it.UserID)
		roles = append(roles, it.Role)
		categories = append(categories, it.Category)
		createdAts = append(createdAts, it.CreatedAt.UnixMilli())
	}

	_, err := s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldVector, s.vectorDim, vectors),
		entity.NewColumnVarChar(FieldSessionID, sessionIDs),
		entity.NewColumnVarChar(FieldUserID, userIDs),
		entity.NewColumnVarChar(FieldRole, roles),
		entity.NewColumnVarChar(FieldCategory, categories),
		entity.NewColumnInt64(FieldCreatedAt, createdAts),
	)
	return err
}

func (s *MilvusMessageIndex) DeleteByIDs(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	refs := make([]string, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, RefForMessage(id))
	}
	expr := fmt.Sprintf(`%s in ["%s"]`, FieldID, strings.Join(refs, `","`))
	return s.cli.Delete(ctx, s.collection, "", expr)
}

func (s *MilvusMessageIndex) Search(ctx context.Context, vector []float32, filter repository.IndexFilter, limit int, minScore float32) ([]repository.IndexHit, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("vector dim mismatch: got %d want %d", len(vector), s.vectorDim)
	}
	if limit <= 0 {
		limit = 10
	}

	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}

	res, err := s.cli.Search(
		ctx,
		s.collection,
		nil,
		BuildFilterExpr(filter),
		[]string{FieldID},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldVector,
		entity.COSINE,
		limit,
		sp,
	)
	if err != nil {
		return nil, err
	}

	hits := make([]repository.IndexHit, 0, limit)
	if len(res) == 0 {
		return hits, nil
	}
	sr := res[0]
	if sr.Err != nil {
		return nil, sr.Err
	}
	for i := 0; i < sr.ResultCount; i++ {
		score := sr.Scores[i]
		if score < minScore {
			continue
		}
		ref, err := sr.IDs.GetAsString(i)
		if err != nil {
			continue
		}
		id, ok := MessageIDFromRef(ref)
		if !ok {
			continue
		}
		hits = append(hits, repository.IndexHit{MessageID: id, Score: score})
	}
	return hits, nil
}

// BuildFilterExpr renders filter as a Milvus boolean expression ("" = no filter).
func BuildFilterExpr(filter repository.IndexFilter) string {
	parts := make([]string, 0, 4)
	if v := strings.TrimSpace(filter.SessionID); v != "" {
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, FieldSessionID, escapeExprString(v)))
	}
	if v := strings.TrimSpace(filter.UserID); v != "" {
		parts = append(parts, fmt.Sprintf(`%s == "%s"`, FieldUserID, escapeExprString(v)))
	}
	if filter.DateFrom != nil {
		parts = append(parts, fmt.Sprintf(`%s >= %d`, FieldCreatedAt, filter.DateFrom.UnixMilli()))
	}
	if filter.DateTo != nil {
		parts = append(parts, fmt.Sprintf(`%s <= %d`, FieldCreatedAt, filter.DateTo.UnixMilli()))
	}
	return strings.Join(parts, " && ")
}

// RefForMessage index key stored as Message.EmbeddingRef
func RefForMessage(id int64) string {
	return strconv.FormatInt(id, 10)
}

func MessageIDFromRef(ref string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(ref), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func escapeExprString(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}
