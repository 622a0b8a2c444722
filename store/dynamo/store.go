// Package dynamo is a store.EntityStore on Amazon DynamoDB.
//
// Each entity type lives in its own table keyed by oid (hash) and vid (range, the version
// OID or "_"). Optimistic locking is a condition on the entity_version attribute. Deletes
// are soft: they set a TTL, and the stream package cascades them to dependents. Children
// of a parent are indexed in a sharded relationship table so they can be listed without
// a scan, and parent existence is checked inside the write transaction.
package dynamo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/persist/internal/shard"
	"github.com/jacentio/persist/store"
)

// Client is the subset of the DynamoDB API the store uses. *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// Query is a named query over an entity table or one of its secondary indexes. Parameters
// are bound to the expression values ":<param>". Soft-deleted items are always filtered out.
type Query struct {
	// IndexName selects a secondary index. Empty queries the table itself.
	IndexName string

	// KeyCondition is the key condition expression. An empty key condition runs a scan.
	KeyCondition string

	// Filter is an optional filter expression.
	Filter string

	// Names are expression attribute names used by KeyCondition and Filter.
	Names map[string]string

	// Params lists the query parameters, in any order.
	Params []string
}

var tableName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

type table struct {
	name    string
	schema  store.Schema
	queries map[string]Query
}

// Store persists entities in DynamoDB tables.
type Store struct {
	client Client
	config Config

	mu     sync.RWMutex
	tables map[string]*table
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		tables: make(map[string]*table),
	}
}

// Register declares entity types. Tables are not created; see EnsureTables.
func (s *Store) Register(schemas ...store.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, schema := range schemas {
		name := s.config.TablePrefix + schema.Type
		if schema.Type == "" || !tableName.MatchString(name) {
			return fmt.Errorf("dynamo: invalid entity type %q", schema.Type)
		}
		s.tables[schema.Type] = &table{name: name, schema: schema, queries: make(map[string]Query)}
	}
	return nil
}

// RegisterQuery adds a named query for an entity type.
func (s *Store) RegisterQuery(entityType, name string, q Query) error {
	switch name {
	case store.QueryAll, store.QueryByOID, store.QueryByParent:
		return fmt.Errorf("dynamo: %s is a built-in query", name)
	}
	if q.KeyCondition == "" && q.Filter == "" {
		return fmt.Errorf("dynamo: query %s.%s has neither key condition nor filter", entityType, name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[entityType]
	if !ok {
		return fmt.Errorf("dynamo: entity type %s not registered", entityType)
	}
	t.queries[name] = q
	return nil
}

// TableName returns the table of a registered entity type.
func (s *Store) TableName(entityType string) (string, error) {
	t, err := s.table(entityType)
	if err != nil {
		return "", err
	}
	return t.name, nil
}

func (s *Store) table(entityType string) (*table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[entityType]
	if !ok {
		return nil, fmt.Errorf("dynamo: entity type %s not registered", entityType)
	}
	return t, nil
}

// parentTable returns the table of t's parent type when its existence can be checked
// with a single key: the parent is registered and not versioned.
func (s *Store) parentTable(t *table) *table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	parent, ok := s.tables[t.schema.ParentType]
	if !ok || parent.schema.Versioned {
		return nil
	}
	return parent
}

// FindByKey implements store.EntityStore.
func (s *Store) FindByKey(ctx context.Context, entityType string, key store.PK) ([]*store.Entity, error) {
	t, err := s.table(entityType)
	if err != nil {
		return nil, err
	}
	e, err := s.get(ctx, t, key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return []*store.Entity{}, nil
	}
	return []*store.Entity{e}, nil
}

// get reads one live item, or returns nil when it is missing or soft-deleted.
func (s *Store) get(ctx context.Context, t *table, key store.PK) (*store.Entity, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.name),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get %s %s: %w", t.schema.Type, key, err)
	}
	if out.Item == nil || IsDeleted(out.Item, s.config.Now()) {
		return nil, nil
	}
	return unmarshalEntity(out.Item)
}

// Write implements store.EntityStore.
func (s *Store) Write(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	t, err := s.table(e.Type)
	if err != nil {
		return nil, err
	}
	if t.schema.ParentType != "" && e.ParentOID == "" {
		return nil, &store.ConstraintViolation{
			Kind:   store.NotNull,
			Column: attrParentOID,
			Err:    fmt.Errorf("dynamo: %s %s has no parent", e.Type, e.Key),
		}
	}

	persisted := e.Clone()
	persisted.Version = e.Version + 1
	av, err := marshalEntity(persisted)
	if err != nil {
		return nil, err
	}

	if e.Version == 0 {
		err = s.insert(ctx, t, persisted, av)
	} else {
		err = s.update(ctx, t, e, av)
	}
	if err != nil {
		return nil, err
	}
	s.config.Logger.Debug("dynamo: wrote entity", "entityType", e.Type, "key", e.Key.String(), "version", persisted.Version)
	return persisted, nil
}

// insert puts a new item. Dependents are written in a transaction that also checks the
// parent and adds the relationship record.
func (s *Store) insert(ctx context.Context, t *table, e *store.Entity, av map[string]types.AttributeValue) error {
	now := s.config.Now()
	put := &types.Put{
		TableName:                 aws.String(t.name),
		Item:                      av,
		ConditionExpression:       aws.String(insertCondition),
		ExpressionAttributeNames:  map[string]string{"#oid": attrOID, "#ttl": attrTTL},
		ExpressionAttributeValues: TTLFilterValues(now),
	}

	if t.schema.ParentType == "" {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                 put.TableName,
			Item:                      put.Item,
			ConditionExpression:       put.ConditionExpression,
			ExpressionAttributeNames:  put.ExpressionAttributeNames,
			ExpressionAttributeValues: put.ExpressionAttributeValues,
		})
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return duplicateKey(t, e, err)
		}
		if err != nil {
			return fmt.Errorf("dynamo: put %s %s: %w", e.Type, e.Key, err)
		}
		return nil
	}

	items := []types.TransactWriteItem{}
	parentCheckIndex := -1
	if check := s.parentCheck(t, e.ParentOID, now); check != nil {
		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{ConditionCheck: check})
	}
	entityIndex := len(items)
	items = append(items,
		types.TransactWriteItem{Put: put},
		types.TransactWriteItem{Put: s.relationshipPut(t, e)},
	)

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	return s.mapTransactionError(t, e, err, parentCheckIndex, entityIndex, true)
}

// update applies a version-conditioned update. A dependent that moves to another parent
// is updated in a transaction that checks the new parent and moves its relationship record.
func (s *Store) update(ctx context.Context, t *table, e *store.Entity, av map[string]types.AttributeValue) error {
	now := s.config.Now()
	upd := s.versionedUpdate(t, e, av, now)

	if t.schema.ParentType != "" {
		current, err := s.get(ctx, t, e.Key)
		if err != nil {
			return err
		}
		if current != nil && current.ParentOID != e.ParentOID {
			return s.reparent(ctx, t, e, current.ParentOID, upd, now)
		}
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           upd.TableName,
		Key:                                 upd.Key,
		UpdateExpression:                    upd.UpdateExpression,
		ConditionExpression:                 upd.ConditionExpression,
		ExpressionAttributeNames:            upd.ExpressionAttributeNames,
		ExpressionAttributeValues:           upd.ExpressionAttributeValues,
		ReturnValuesOnConditionCheckFailure: upd.ReturnValuesOnConditionCheckFailure,
	})
	return s.conditionalError(e, err, "update")
}

func (s *Store) reparent(ctx context.Context, t *table, e *store.Entity, oldParent string, upd *types.Update, now time.Time) error {
	items := []types.TransactWriteItem{}
	parentCheckIndex := -1
	if check := s.parentCheck(t, e.ParentOID, now); check != nil {
		parentCheckIndex = len(items)
		items = append(items, types.TransactWriteItem{ConditionCheck: check})
	}
	entityIndex := len(items)
	items = append(items,
		types.TransactWriteItem{Update: upd},
		types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(s.config.RelationshipTable),
			Key:       s.relationshipKey(t, oldParent, e.Key),
		}},
		types.TransactWriteItem{Put: s.relationshipPut(t, e)},
	)

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		s.config.Logger.Debug("dynamo: moved entity", "entityType", e.Type, "key", e.Key.String(), "from", oldParent, "to", e.ParentOID)
	}
	return s.mapTransactionError(t, e, err, parentCheckIndex, entityIndex, false)
}

// versionedUpdate builds an update that replaces every non-key attribute of the item with
// av, provided the stored entity version equals e.Version and the item is live.
func (s *Store) versionedUpdate(t *table, e *store.Entity, av map[string]types.AttributeValue, now time.Time) *types.Update {
	exprNames := map[string]string{
		"#entity_version": attrEntityVersion,
		"#ttl":            attrTTL,
	}
	exprValues := map[string]types.AttributeValue{
		":expected": numberValue(e.Version),
		":now":      unixValue(now),
	}

	var setClauses, removeClauses []string
	i := 0
	for _, k := range slices.Sorted(maps.Keys(av)) {
		if k == attrOID || k == attrVID {
			continue
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		valueKey := fmt.Sprintf(":val%d", i)
		exprNames[nameKey] = k
		exprValues[valueKey] = av[k]
		setClauses = append(setClauses, nameKey+" = "+valueKey)
		i++
	}
	for _, k := range optionalAttrs {
		if _, ok := av[k]; ok {
			continue
		}
		nameKey := fmt.Sprintf("#attr%d", i)
		exprNames[nameKey] = k
		removeClauses = append(removeClauses, nameKey)
		i++
	}

	updateExpr := "SET " + strings.Join(setClauses, ", ")
	if len(removeClauses) > 0 {
		updateExpr += " REMOVE " + strings.Join(removeClauses, ", ")
	}

	return &types.Update{
		TableName:                           aws.String(t.name),
		Key:                                 keyOf(e.Key),
		UpdateExpression:                    aws.String(updateExpr),
		ConditionExpression:                 aws.String(liveVersionCondition),
		ExpressionAttributeNames:            exprNames,
		ExpressionAttributeValues:           exprValues,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
}

// parentCheck returns the transaction condition that the parent exists and is live, or
// nil when the parent type cannot be checked.
func (s *Store) parentCheck(t *table, parentOID string, now time.Time) *types.ConditionCheck {
	parent := s.parentTable(t)
	if parent == nil {
		return nil
	}
	return &types.ConditionCheck{
		TableName:                 aws.String(parent.name),
		Key:                       keyOf(store.PK{OID: parentOID}),
		ConditionExpression:       aws.String(ParentExistsCondition()),
		ExpressionAttributeNames:  map[string]string{"#oid": attrOID, "#ttl": attrTTL},
		ExpressionAttributeValues: TTLFilterValues(now),
	}
}

func (s *Store) relationshipKey(t *table, parentOID string, key store.PK) map[string]types.AttributeValue {
	parentRef := shard.Ref(t.schema.ParentType, parentOID)
	childRef := shard.Ref(t.schema.Type, key.String())
	return map[string]types.AttributeValue{
		attrPK:       stringValue(shard.RelationshipPK(parentRef, childRef, s.config.NumShards)),
		attrChildRef: stringValue(childRef),
	}
}

func (s *Store) relationshipPut(t *table, e *store.Entity) *types.Put {
	record := s.relationshipKey(t, e.ParentOID, e.Key)
	record[attrParentRef] = stringValue(shard.Ref(t.schema.ParentType, e.ParentOID))
	record[attrParentOID] = stringValue(e.ParentOID)
	record[attrChildType] = stringValue(t.schema.Type)
	record[attrChildOID] = stringValue(e.Key.OID)
	record[attrChildVID] = stringValue(vid(e.Key))
	return &types.Put{
		TableName: aws.String(s.config.RelationshipTable),
		Item:      record,
	}
}

// Remove implements store.EntityStore. It soft-deletes the item by setting its TTL and
// bumping its entity version so concurrent writers fail.
func (s *Store) Remove(ctx context.Context, e *store.Entity) error {
	t, err := s.table(e.Type)
	if err != nil {
		return err
	}
	now := s.config.Now()
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(t.name),
		Key:                 keyOf(e.Key),
		UpdateExpression:    aws.String("SET #ttl = :now, #entity_version = #entity_version + :one"),
		ConditionExpression: aws.String(liveVersionCondition),
		ExpressionAttributeNames: map[string]string{
			"#ttl":            attrTTL,
			"#entity_version": attrEntityVersion,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":      unixValue(now),
			":one":      numberValue(1),
			":expected": numberValue(e.Version),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err := s.conditionalError(e, err, "delete"); err != nil {
		return err
	}

	if t.schema.ParentType != "" && e.ParentOID != "" {
		if err := s.expireRelationship(ctx, t, e.ParentOID, e.Key, now); err != nil {
			s.config.Logger.Warn("dynamo: failed to expire relationship record",
				"entityType", e.Type,
				"key", e.Key.String(),
				"parent", e.ParentOID,
				"error", err,
			)
		}
	}
	s.config.Logger.Debug("dynamo: soft-deleted entity", "entityType", e.Type, "key", e.Key.String())
	return nil
}

// expireRelationship sets the TTL of a relationship record. A record that already has
// one is left alone.
func (s *Store) expireRelationship(ctx context.Context, t *table, parentOID string, key store.PK, now time.Time) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.config.RelationshipTable),
		Key:                       s.relationshipKey(t, parentOID, key),
		UpdateExpression:          aws.String("SET #ttl = :ttl"),
		ConditionExpression:       aws.String("attribute_not_exists(#ttl)"),
		ExpressionAttributeNames:  map[string]string{"#ttl": attrTTL},
		ExpressionAttributeValues: map[string]types.AttributeValue{":ttl": unixValue(now)},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return nil
	}
	return err
}

// Refresh implements store.EntityStore.
func (s *Store) Refresh(ctx context.Context, e *store.Entity) (*store.Entity, error) {
	t, err := s.table(e.Type)
	if err != nil {
		return nil, err
	}
	fresh, err := s.get(ctx, t, e.Key)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
	}
	return fresh, nil
}

// RunNamedQuery implements store.EntityStore.
func (s *Store) RunNamedQuery(ctx context.Context, entityType, name string, params store.Params) ([]*store.Entity, error) {
	t, err := s.table(entityType)
	if err != nil {
		return nil, err
	}
	switch name {
	case store.QueryAll:
		return s.read(ctx, t, Query{}, nil)
	case store.QueryByOID:
		oid, err := params.String(store.ParamOID)
		if err != nil {
			return nil, err
		}
		q := Query{KeyCondition: "#oid = :oid", Names: map[string]string{"#oid": attrOID}}
		return s.read(ctx, t, q, map[string]types.AttributeValue{":oid": stringValue(oid)})
	case store.QueryByParent:
		parent, err := params.String(store.ParamParent)
		if err != nil {
			return nil, err
		}
		return s.children(ctx, t, parent)
	}

	s.mu.RLock()
	q, ok := t.queries[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", store.ErrUnknownQuery, entityType, name)
	}
	values := make(map[string]types.AttributeValue, len(q.Params))
	for _, p := range q.Params {
		v, ok := params[p]
		if !ok {
			return nil, fmt.Errorf("%w: %s", store.ErrMissingParameter, p)
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("dynamo: marshal parameter %s: %w", p, err)
		}
		values[":"+p] = av
	}
	return s.read(ctx, t, q, values)
}

// read runs q as a query, or as a scan when it has no key condition, paginating through
// all results and dropping soft-deleted items.
func (s *Store) read(ctx context.Context, t *table, q Query, values map[string]types.AttributeValue) ([]*store.Entity, error) {
	filterExpr := TTLFilterExpr()
	if q.Filter != "" {
		filterExpr = fmt.Sprintf("(%s) AND (%s)", q.Filter, filterExpr)
	}
	exprNames := mergeExprNames(TTLFilterNames(), q.Names)
	exprValues := mergeExprValues(TTLFilterValues(s.config.Now()), values)
	var index *string
	if q.IndexName != "" {
		index = aws.String(q.IndexName)
	}
	consistent := aws.Bool(q.IndexName == "")

	var raw []map[string]types.AttributeValue
	if q.KeyCondition == "" {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:                 aws.String(t.name),
			IndexName:                 index,
			FilterExpression:          aws.String(filterExpr),
			ExpressionAttributeNames:  exprNames,
			ExpressionAttributeValues: exprValues,
			ConsistentRead:            consistent,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("dynamo: scan %s: %w", t.name, err)
			}
			raw = append(raw, page.Items...)
		}
	} else {
		paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
			TableName:                 aws.String(t.name),
			IndexName:                 index,
			KeyConditionExpression:    aws.String(q.KeyCondition),
			FilterExpression:          aws.String(filterExpr),
			ExpressionAttributeNames:  exprNames,
			ExpressionAttributeValues: exprValues,
			ConsistentRead:            consistent,
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, fmt.Errorf("dynamo: query %s: %w", t.name, err)
			}
			raw = append(raw, page.Items...)
		}
	}

	out := make([]*store.Entity, 0, len(raw))
	for _, r := range raw {
		e, err := unmarshalEntity(r)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	sortEntities(out)
	return out, nil
}

// children lists the live children of parentOID through the relationship index.
func (s *Store) children(ctx context.Context, t *table, parentOID string) ([]*store.Entity, error) {
	out := []*store.Entity{}
	if t.schema.ParentType == "" {
		return out, nil
	}
	refs, err := s.queryChildRefs(ctx, shard.Ref(t.schema.ParentType, parentOID))
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.ChildType != t.schema.Type {
			continue
		}
		e, err := s.get(ctx, t, ref.Key)
		if err != nil {
			return nil, err
		}
		// The record can outlive a child that moved or was deleted.
		if e == nil || e.ParentOID != parentOID {
			continue
		}
		out = append(out, e)
	}
	sortEntities(out)
	return out, nil
}

// queryChildRefs returns the live relationship records of parentRef across all shards.
func (s *Store) queryChildRefs(ctx context.Context, parentRef string) ([]childRef, error) {
	shards := shard.All(parentRef, s.config.NumShards)

	// Fast path for single shard (default)
	if len(shards) == 1 {
		return s.queryShard(ctx, shards[0])
	}

	var mu sync.Mutex
	var all []childRef
	var wg sync.WaitGroup
	errs := make(chan error, len(shards))

	for _, shardPK := range shards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs, err := s.queryShard(ctx, shardPK)
			if err != nil {
				errs <- fmt.Errorf("shard %s: %w", shardPK, err)
				return
			}
			mu.Lock()
			all = append(all, refs...)
			mu.Unlock()
		}()
	}

	wg.Wait()
	close(errs)
	if err, ok := <-errs; ok {
		return nil, err
	}
	return all, nil
}

func (s *Store) queryShard(ctx context.Context, shardPK string) ([]childRef, error) {
	var refs []childRef
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                aws.String(s.config.RelationshipTable),
		KeyConditionExpression:   aws.String("#pk = :pk"),
		FilterExpression:         aws.String(TTLFilterExpr()),
		ExpressionAttributeNames: mergeExprNames(TTLFilterNames(), map[string]string{"#pk": attrPK}),
		ExpressionAttributeValues: mergeExprValues(TTLFilterValues(s.config.Now()), map[string]types.AttributeValue{
			":pk": stringValue(shardPK),
		}),
		ConsistentRead: aws.Bool(true),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			refs = append(refs, unmarshalChildRef(item))
		}
	}
	return refs, nil
}

// EnsureTables creates the tables of all registered entity types and the relationship
// table when they don't exist, with TTL enabled. Entity tables get a NEW_AND_OLD_IMAGES
// stream for the cascade handler.
func (s *Store) EnsureTables(ctx context.Context) error {
	s.mu.RLock()
	names := make([]string, 0, len(s.tables))
	for _, t := range s.tables {
		names = append(names, t.name)
	}
	s.mu.RUnlock()
	slices.Sort(names)

	for _, name := range names {
		if err := s.ensureTable(ctx, name, attrOID, attrVID, true); err != nil {
			return err
		}
	}
	return s.ensureTable(ctx, s.config.RelationshipTable, attrPK, attrChildRef, false)
}

func (s *Store) ensureTable(ctx context.Context, name, hashKey, rangeKey string, stream bool) error {
	in := &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(hashKey), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(rangeKey), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(rangeKey), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	if stream {
		in.StreamSpecification = &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		}
	}
	_, err := s.client.CreateTable(ctx, in)
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dynamo: create table %s: %w", name, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(s.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, 2*time.Minute); err != nil {
		return fmt.Errorf("dynamo: wait for table %s: %w", name, err)
	}
	_, err = s.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(name),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(attrTTL),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		return fmt.Errorf("dynamo: enable ttl on %s: %w", name, err)
	}
	s.config.Logger.Info("dynamo: created table", "table", name)
	return nil
}

// mapTransactionError maps a cancelled write transaction to store failures.
// parentCheckIndex is the index of the parent check item (-1 if none), entityIndex the
// index of the entity put or update.
func (s *Store) mapTransactionError(t *table, e *store.Entity, err error, parentCheckIndex, entityIndex int, insert bool) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
				continue
			}
			switch i {
			case parentCheckIndex:
				return &store.ConstraintViolation{
					Kind:       store.ForeignKey,
					Constraint: t.name + "_parent",
					Column:     attrParentOID,
					Parent:     true,
					Err:        err,
				}
			case entityIndex:
				if insert {
					return duplicateKey(t, e, err)
				}
				return s.staleOrGone(e, reason.Item)
			}
		}
	}
	return fmt.Errorf("dynamo: write %s %s: %w", e.Type, e.Key, err)
}

// conditionalError maps a failed conditional update of e.
func (s *Store) conditionalError(e *store.Entity, err error, op string) error {
	if err == nil {
		return nil
	}
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return s.staleOrGone(e, condErr.Item)
	}
	return fmt.Errorf("dynamo: %s %s %s: %w", op, e.Type, e.Key, err)
}

// staleOrGone tells a vanished item from a concurrent modification using the item
// returned with the failed condition.
func (s *Store) staleOrGone(e *store.Entity, old map[string]types.AttributeValue) error {
	if old == nil || IsDeleted(old, s.config.Now()) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, e.Type, e.Key)
	}
	var current int64
	if v, ok := old[attrEntityVersion].(*types.AttributeValueMemberN); ok {
		current, _ = strconv.ParseInt(v.Value, 10, 64)
	}
	return fmt.Errorf("%w: %s %s at version %d, expected %d", store.ErrVersionMismatch, e.Type, e.Key, current, e.Version)
}

func duplicateKey(t *table, e *store.Entity, err error) error {
	return &store.ConstraintViolation{
		Kind:       store.Unique,
		Constraint: t.name + "_pkey",
		Column:     attrOID,
		Identity:   true,
		Err:        fmt.Errorf("%s %s: %w", e.Type, e.Key, err),
	}
}

func sortEntities(es []*store.Entity) {
	slices.SortFunc(es, func(a, b *store.Entity) int {
		return cmp.Or(strings.Compare(a.Key.OID, b.Key.OID), strings.Compare(a.Key.Version, b.Key.Version))
	})
}
