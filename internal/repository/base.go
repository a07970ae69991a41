package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// QueryOptions shape a read. IncludeHidden re-selects fields the repository
// hides by default (password, tokens).
type QueryOptions struct {
	Sort          bson.D
	Skip          int64
	Limit         int64
	IncludeHidden []string
}

type PageOptions struct {
	Page  int64
	Limit int64
	Sort  bson.D
}

type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int64 `json:"page"`
	Limit      int64 `json:"limit"`
	TotalPages int64 `json:"totalPages"`
}

type UpdateManyResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// NewPage derives TotalPages as ceil(total/limit).
func NewPage[T any](items []T, total, page, limit int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	var totalPages int64
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}
}

func normalizePageOptions(opts PageOptions) PageOptions {
	if opts.Page < 1 {
		opts.Page = defaultPage
	}
	if opts.Limit < 1 {
		opts.Limit = defaultLimit
	}
	if len(opts.Sort) == 0 {
		opts.Sort = bson.D{{Key: "createdAt", Value: -1}}
	}
	return opts
}

// Base is the generic data-access surface over one collection. Domain
// repositories embed a Base for their entity and add specialised queries.
// Store errors are returned unmodified; a missing document is (nil, nil).
type Base[T any] struct {
	coll    *mongo.Collection
	timeout time.Duration
	hidden  []string
}

type BaseOption func(*baseSettings)

type baseSettings struct {
	timeout time.Duration
	hidden  []string
}

// WithTimeout bounds every store call made through the repository.
func WithTimeout(d time.Duration) BaseOption {
	return func(s *baseSettings) { s.timeout = d }
}

// WithHiddenFields excludes fields from every read unless the caller lists
// them in QueryOptions.IncludeHidden.
func WithHiddenFields(fields ...string) BaseOption {
	return func(s *baseSettings) { s.hidden = append(s.hidden, fields...) }
}

func NewBase[T any](coll *mongo.Collection, opts ...BaseOption) *Base[T] {
	var settings baseSettings
	for _, opt := range opts {
		opt(&settings)
	}
	return &Base[T]{
		coll:    coll,
		timeout: settings.timeout,
		hidden:  settings.hidden,
	}
}

func (r *Base[T]) Collection() *mongo.Collection {
	return r.coll
}

func (r *Base[T]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Base[T]) projection(include []string) bson.D {
	if len(r.hidden) == 0 {
		return nil
	}
	keep := make(map[string]struct{}, len(include))
	for _, f := range include {
		keep[f] = struct{}{}
	}
	var proj bson.D
	for _, f := range r.hidden {
		if _, ok := keep[f]; ok {
			continue
		}
		proj = append(proj, bson.E{Key: f, Value: 0})
	}
	return proj
}

func firstOptions(opts []QueryOptions) QueryOptions {
	if len(opts) == 0 {
		return QueryOptions{}
	}
	return opts[0]
}

func orEmpty(filter interface{}) interface{} {
	if filter == nil {
		return bson.D{}
	}
	return filter
}

func (r *Base[T]) Create(ctx context.Context, doc T) (*T, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return r.findOne(ctx, bson.D{{Key: "_id", Value: res.InsertedID}}, QueryOptions{})
}

func (r *Base[T]) CreateMany(ctx context.Context, docs []T) ([]T, error) {
	if len(docs) == 0 {
		return []T{}, nil
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	payload := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		payload = append(payload, doc)
	}
	res, err := r.coll.InsertMany(ctx, payload)
	if err != nil {
		return nil, err
	}
	return r.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: res.InsertedIDs}}}}, QueryOptions{})
}

func (r *Base[T]) FindOne(ctx context.Context, filter interface{}, opts ...QueryOptions) (*T, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.findOne(ctx, filter, firstOptions(opts))
}

func (r *Base[T]) findOne(ctx context.Context, filter interface{}, qo QueryOptions) (*T, error) {
	findOpts := options.FindOne()
	if proj := r.projection(qo.IncludeHidden); proj != nil {
		findOpts.SetProjection(proj)
	}
	if len(qo.Sort) > 0 {
		findOpts.SetSort(qo.Sort)
	}

	var out T
	if err := r.coll.FindOne(ctx, orEmpty(filter), findOpts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *Base[T]) FindByID(ctx context.Context, id interface{}, opts ...QueryOptions) (*T, error) {
	return r.FindOne(ctx, bson.D{{Key: "_id", Value: id}}, opts...)
}

func (r *Base[T]) Find(ctx context.Context, filter interface{}, opts ...QueryOptions) ([]T, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.find(ctx, filter, firstOptions(opts))
}

func (r *Base[T]) find(ctx context.Context, filter interface{}, qo QueryOptions) ([]T, error) {
	findOpts := options.Find()
	if proj := r.projection(qo.IncludeHidden); proj != nil {
		findOpts.SetProjection(proj)
	}
	if len(qo.Sort) > 0 {
		findOpts.SetSort(qo.Sort)
	}
	if qo.Skip > 0 {
		findOpts.SetSkip(qo.Skip)
	}
	if qo.Limit > 0 {
		findOpts.SetLimit(qo.Limit)
	}

	cursor, err := r.coll.Find(ctx, orEmpty(filter), findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := []T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FindPaginated runs the page query and the count concurrently.
func (r *Base[T]) FindPaginated(ctx context.Context, filter interface{}, opts PageOptions) (Page[T], error) {
	opts = normalizePageOptions(opts)
	filter = orEmpty(filter)

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var (
		items []T
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = r.find(gctx, filter, QueryOptions{
			Sort:  opts.Sort,
			Skip:  (opts.Page - 1) * opts.Limit,
			Limit: opts.Limit,
		})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.coll.CountDocuments(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return Page[T]{}, err
	}

	return NewPage(items, total, opts.Page, opts.Limit), nil
}

// UpdateOne applies update and returns the post-update document.
func (r *Base[T]) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...QueryOptions) (*T, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	qo := firstOptions(opts)
	updOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if proj := r.projection(qo.IncludeHidden); proj != nil {
		updOpts.SetProjection(proj)
	}

	var out T
	if err := r.coll.FindOneAndUpdate(ctx, orEmpty(filter), update, updOpts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *Base[T]) UpdateByID(ctx context.Context, id interface{}, update interface{}, opts ...QueryOptions) (*T, error) {
	return r.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, update, opts...)
}

func (r *Base[T]) UpdateMany(ctx context.Context, filter interface{}, update interface{}) (UpdateManyResult, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.coll.UpdateMany(ctx, orEmpty(filter), update)
	if err != nil {
		return UpdateManyResult{}, err
	}
	return UpdateManyResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount}, nil
}

// Increment atomically adds value to a numeric field.
func (r *Base[T]) Increment(ctx context.Context, filter interface{}, field string, value int64) (*T, error) {
	return r.UpdateOne(ctx, filter, bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: value}}}})
}

func (r *Base[T]) Decrement(ctx context.Context, filter interface{}, field string, value int64) (*T, error) {
	return r.Increment(ctx, filter, field, -value)
}

func (r *Base[T]) DeleteOne(ctx context.Context, filter interface{}) (*T, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	delOpts := options.FindOneAndDelete()
	if proj := r.projection(nil); proj != nil {
		delOpts.SetProjection(proj)
	}

	var out T
	if err := r.coll.FindOneAndDelete(ctx, orEmpty(filter), delOpts).Decode(&out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *Base[T]) DeleteByID(ctx context.Context, id interface{}) (*T, error) {
	return r.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
}

func (r *Base[T]) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.coll.DeleteMany(ctx, orEmpty(filter))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *Base[T]) Count(ctx context.Context, filter interface{}) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.coll.CountDocuments(ctx, orEmpty(filter))
}

// Exists stops counting at the first match.
func (r *Base[T]) Exists(ctx context.Context, filter interface{}) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, orEmpty(filter), options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Base[T]) Distinct(ctx context.Context, field string, filter interface{}) ([]interface{}, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return r.coll.Distinct(ctx, field, orEmpty(filter))
}

// Aggregate decodes pipeline output into bson.M rows.
func (r *Base[T]) Aggregate(ctx context.Context, pipeline interface{}) ([]bson.M, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	rows := []bson.M{}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
