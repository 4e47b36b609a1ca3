package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bakehouse/backend/internal/directory"
	"bakehouse/backend/internal/domain"
	"bakehouse/backend/internal/events"
	"bakehouse/backend/internal/gateway"
	"bakehouse/backend/internal/store"
	"bakehouse/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

type Options struct {
	Directory *directory.Directory
	Gateway   gateway.Verifier
	Events    events.Publisher
	Logger    *zap.Logger
	Clock     func() time.Time
	// ShortageEpsilon is the tolerance below which a run closure posts no shortage.
	// Nil means 0.01; a zero value posts every non-zero shortage.
	ShortageEpsilon *decimal.Decimal
	// WarehouseKeeper receives production returns when a batch completion names nobody.
	WarehouseKeeper string
}

type Service struct {
	store     store.Store
	directory *directory.Directory
	gateway   gateway.Verifier
	events    events.Publisher
	logger    *zap.Logger
	validate  *validator.Validate
	now       func() time.Time
	epsilon   decimal.Decimal
	keeper    string
}

func New(st store.Store, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Directory == nil {
		opts.Directory = directory.New(st, nil, 0, opts.Logger)
	}
	if opts.Gateway == nil {
		opts.Gateway = gateway.NewStatic()
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	epsilon := decimal.RequireFromString("0.01")
	if opts.ShortageEpsilon != nil {
		epsilon = *opts.ShortageEpsilon
	}
	if opts.WarehouseKeeper == "" {
		opts.WarehouseKeeper = "store"
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	return &Service{
		store:     st,
		directory: opts.Directory,
		gateway:   opts.Gateway,
		events:    opts.Events,
		logger:    opts.Logger,
		validate:  validate,
		now:       opts.Clock,
		epsilon:   epsilon,
		keeper:    opts.WarehouseKeeper,
	}
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// check runs struct validation and folds the failures into one ErrValidation.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return store.Validationf("%v", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s failed %s", k, fields[k]))
	}
	return store.Validationf("%s", strings.Join(parts, "; "))
}

// logAudit writes the audit entry outside the caller's transaction. Failure is
// logged and swallowed.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor := actorOrSystem(ctx)
	entry := domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     s.clock(),
	}
	if err := s.store.Put(ctx, store.AuditLogs, entry.ID, entry); err != nil {
		s.logger.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, entityType string, entityID string, data map[string]any) {
	event := events.Event{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actorOrSystem(ctx).Username,
		Data:       data,
		At:         s.clock(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.String("entity_id", entityID), zap.Error(err))
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, entityType string, limit int) ([]domain.AuditLog, error) {
	var filters []store.Where
	if entityType != "" {
		filters = append(filters, store.Where{Field: "entity_type", Value: entityType})
	}
	logs, err := store.List[domain.AuditLog](ctx, s.store, store.AuditLogs, filters...)
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// normalizeTransferItems merges repeated products and rejects non-positive quantities.
func normalizeTransferItems(items []domain.TransferItem) ([]domain.TransferItem, error) {
	index := make(map[string]int, len(items))
	out := make([]domain.TransferItem, 0, len(items))
	for _, item := range items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return nil, store.Validationf("product_id is required")
		}
		if !item.Quantity.IsPositive() {
			return nil, store.Validationf("quantity for %s must be positive", item.ProductID)
		}
		if i, seen := index[item.ProductID]; seen {
			out[i].Quantity = out[i].Quantity.Add(item.Quantity)
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil, store.Validationf("at least one item is required")
	}
	return out, nil
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
