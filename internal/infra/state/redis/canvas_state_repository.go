package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-whiteboard/internal/domain"
	"collaborative-whiteboard/internal/repository"
)

// maxTxRetries 是 WATCH 事务在冲突时的最大重试次数
const maxTxRetries = 8

// RedisCanvasStateRepository 是 CanvasStateRepository 接口的 Redis 实现。
//
// 每个文档的实时画布拆成以下 key：
//
//	{prefix}doc:{id}:strokes        LIST   笔画 JSON，按提交顺序
//	{prefix}doc:{id}:items:{kind}   HASH   元素 id -> 元素 JSON
//	{prefix}doc:{id}:order:{kind}   ZSET   元素 id，score 为首次添加时间
//	{prefix}doc:{id}:version        STRING 每次变更 INCR
//	{prefix}doc:{id}:loaded         STRING 已从数据库加载的标记
type RedisCanvasStateRepository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisCanvasStateRepository 创建 RedisCanvasStateRepository 实例
func NewRedisCanvasStateRepository(client *redis.Client, keyPrefix string) *RedisCanvasStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisCanvasStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "wb:"
	}
	return &RedisCanvasStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---
func (r *RedisCanvasStateRepository) strokesKey(documentID string) string {
	return fmt.Sprintf("%sdoc:%s:strokes", r.keyPrefix, documentID)
}

func (r *RedisCanvasStateRepository) itemsKey(documentID string, kind domain.ItemKind) string {
	return fmt.Sprintf("%sdoc:%s:items:%s", r.keyPrefix, documentID, kind)
}

func (r *RedisCanvasStateRepository) orderKey(documentID string, kind domain.ItemKind) string {
	return fmt.Sprintf("%sdoc:%s:order:%s", r.keyPrefix, documentID, kind)
}

func (r *RedisCanvasStateRepository) versionKey(documentID string) string {
	return fmt.Sprintf("%sdoc:%s:version", r.keyPrefix, documentID)
}

func (r *RedisCanvasStateRepository) loadedKey(documentID string) string {
	return fmt.Sprintf("%sdoc:%s:loaded", r.keyPrefix, documentID)
}

// --- Lifecycle ---

func (r *RedisCanvasStateRepository) IsLoaded(ctx context.Context, documentID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.loadedKey(documentID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to check loaded marker for document %s: %w", documentID, err)
	}
	return n > 0, nil
}

// Hydrate 把数据库中的画布写入 Redis。WATCH 加载标记，并发加载时只有一个会生效。
func (r *RedisCanvasStateRepository) Hydrate(ctx context.Context, documentID string, state *domain.CanvasState) error {
	if state == nil {
		state = domain.NewCanvasState()
	}
	loadedKey := r.loadedKey(documentID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, loadedKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		strokes := make([]interface{}, 0, len(state.Strokes))
		for _, stroke := range state.Strokes {
			b, err := json.Marshal(stroke)
			if err != nil {
				return fmt.Errorf("failed to marshal stroke %s: %w", stroke.ID, err)
			}
			strokes = append(strokes, string(b))
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			strokesKey := r.strokesKey(documentID)
			pipe.Del(ctx, strokesKey)
			if len(strokes) > 0 {
				pipe.RPush(ctx, strokesKey, strokes...)
			}
			for _, kind := range domain.ItemKinds {
				itemsKey, orderKey := r.itemsKey(documentID, kind), r.orderKey(documentID, kind)
				pipe.Del(ctx, itemsKey, orderKey)
				for i, item := range *state.Items(kind) {
					b, err := json.Marshal(item)
					if err != nil {
						return fmt.Errorf("failed to marshal %s item %s: %w", kind, item.ID(), err)
					}
					pipe.HSet(ctx, itemsKey, item.ID(), string(b))
					pipe.ZAddNX(ctx, orderKey, &redis.Z{Score: float64(i), Member: item.ID()})
				}
			}
			pipe.Set(ctx, r.versionKey(documentID), state.Version, 0)
			pipe.Set(ctx, loadedKey, "1", 0)
			return nil
		})
		return err
	}, loadedKey)

	if errors.Is(err, redis.TxFailedErr) {
		// 另一个实例已经完成加载
		logrus.WithField("document_id", documentID).Debug("redis: hydrate lost race, state already loaded")
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis: failed to hydrate canvas for document %s: %w", documentID, err)
	}
	return nil
}

// GetState 在一个 MULTI 中读取所有 key，得到一致的快照
func (r *RedisCanvasStateRepository) GetState(ctx context.Context, documentID string) (*domain.CanvasState, error) {
	var (
		strokesCmd *redis.StringSliceCmd
		versionCmd *redis.StringCmd
		itemCmds   = make(map[domain.ItemKind]*redis.StringStringMapCmd, len(domain.ItemKinds))
		orderCmds  = make(map[domain.ItemKind]*redis.StringSliceCmd, len(domain.ItemKinds))
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		strokesCmd = pipe.LRange(ctx, r.strokesKey(documentID), 0, -1)
		for _, kind := range domain.ItemKinds {
			itemCmds[kind] = pipe.HGetAll(ctx, r.itemsKey(documentID, kind))
			orderCmds[kind] = pipe.ZRange(ctx, r.orderKey(documentID, kind), 0, -1)
		}
		versionCmd = pipe.Get(ctx, r.versionKey(documentID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: failed to read canvas state for document %s: %w", documentID, err)
	}

	state := domain.NewCanvasState()
	for _, raw := range strokesCmd.Val() {
		var stroke domain.Stroke
		if err := json.Unmarshal([]byte(raw), &stroke); err != nil {
			logrus.WithField("document_id", documentID).WithError(err).Warn("redis: skipping undecodable stroke")
			continue
		}
		state.Strokes = append(state.Strokes, stroke)
	}
	for _, kind := range domain.ItemKinds {
		hash := itemCmds[kind].Val()
		items := state.Items(kind)
		for _, id := range orderCmds[kind].Val() {
			raw, ok := hash[id]
			if !ok {
				continue
			}
			var item domain.Item
			if err := json.Unmarshal([]byte(raw), &item); err != nil {
				logrus.WithFields(logrus.Fields{"document_id": documentID, "kind": kind, "item_id": id}).
					WithError(err).Warn("redis: skipping undecodable item")
				continue
			}
			*items = append(*items, item)
		}
	}
	if v := versionCmd.Val(); v != "" {
		version, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: failed to parse version '%s' for document %s: %w", v, documentID, err)
		}
		state.Version = version
	}
	return state, nil
}

// --- Strokes ---

func (r *RedisCanvasStateRepository) AppendStroke(ctx context.Context, documentID string, stroke domain.Stroke) error {
	b, err := json.Marshal(stroke)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal stroke %s: %w", stroke.ID, err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, r.strokesKey(documentID), string(b))
		pipe.Incr(ctx, r.versionKey(documentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to append stroke to document %s: %w", documentID, err)
	}
	return nil
}

func (r *RedisCanvasStateRepository) ClearStrokes(ctx context.Context, documentID string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.strokesKey(documentID))
		pipe.Incr(ctx, r.versionKey(documentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to clear strokes of document %s: %w", documentID, err)
	}
	return nil
}

// PopStroke WATCH 笔画列表，检查末尾笔画后再 RPOP，避免并发撤销删掉别人的笔画
func (r *RedisCanvasStateRepository) PopStroke(ctx context.Context, documentID, expectedID string) (*domain.Stroke, bool, error) {
	key := r.strokesKey(documentID)
	var popped *domain.Stroke

	txf := func(tx *redis.Tx) error {
		popped = nil
		raw, err := tx.LIndex(ctx, key, -1).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var last domain.Stroke
		if err := json.Unmarshal([]byte(raw), &last); err != nil {
			return fmt.Errorf("failed to unmarshal last stroke: %w", err)
		}
		if expectedID != "" && last.ID != expectedID {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPop(ctx, key)
			pipe.Incr(ctx, r.versionKey(documentID))
			return nil
		})
		if err == nil {
			popped = &last
		}
		return err
	}

	if err := r.watchWithRetry(ctx, txf, key); err != nil {
		return nil, false, fmt.Errorf("redis: failed to pop stroke of document %s: %w", documentID, err)
	}
	return popped, popped != nil, nil
}

// --- Items ---

func (r *RedisCanvasStateRepository) AddItem(ctx context.Context, documentID string, kind domain.ItemKind, item domain.Item) error {
	if !kind.Valid() {
		return fmt.Errorf("redis: unknown item kind %q", kind)
	}
	b, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal %s item %s: %w", kind, item.ID(), err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.itemsKey(documentID, kind), item.ID(), string(b))
		// NX 保证替换同 id 元素时位置不变
		pipe.ZAddNX(ctx, r.orderKey(documentID, kind), &redis.Z{Score: float64(time.Now().UnixNano()), Member: item.ID()})
		pipe.Incr(ctx, r.versionKey(documentID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to add %s item to document %s: %w", kind, documentID, err)
	}
	return nil
}

// UpdateItem WATCH 元素 hash，读出后在内存中合并再写回
func (r *RedisCanvasStateRepository) UpdateItem(ctx context.Context, documentID string, kind domain.ItemKind, id string, fields map[string]any) (bool, error) {
	if !kind.Valid() {
		return false, nil
	}
	key := r.itemsKey(documentID, kind)
	var updated bool

	txf := func(tx *redis.Tx) error {
		updated = false
		raw, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var item domain.Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return fmt.Errorf("failed to unmarshal item %s: %w", id, err)
		}
		b, err := json.Marshal(item.Merge(fields))
		if err != nil {
			return fmt.Errorf("failed to marshal item %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, string(b))
			pipe.Incr(ctx, r.versionKey(documentID))
			return nil
		})
		if err == nil {
			updated = true
		}
		return err
	}

	if err := r.watchWithRetry(ctx, txf, key); err != nil {
		return false, fmt.Errorf("redis: failed to update %s item %s of document %s: %w", kind, id, documentID, err)
	}
	return updated, nil
}

func (r *RedisCanvasStateRepository) DeleteItem(ctx context.Context, documentID string, kind domain.ItemKind, id string) (bool, error) {
	if !kind.Valid() {
		return false, nil
	}
	key := r.itemsKey(documentID, kind)
	var deleted bool

	txf := func(tx *redis.Tx) error {
		deleted = false
		exists, err := tx.HExists(ctx, key, id).Result()
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, key, id)
			pipe.ZRem(ctx, r.orderKey(documentID, kind), id)
			pipe.Incr(ctx, r.versionKey(documentID))
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}

	if err := r.watchWithRetry(ctx, txf, key); err != nil {
		return false, fmt.Errorf("redis: failed to delete %s item %s of document %s: %w", kind, id, documentID, err)
	}
	return deleted, nil
}

// watchWithRetry 执行 WATCH 事务，冲突时重试，耗尽后返回 repository.ErrConflict
func (r *RedisCanvasStateRepository) watchWithRetry(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		logrus.WithField("keys", keys).Debugf("redis: optimistic transaction conflict, retry %d", i+1)
	}
	return repository.ErrConflict
}
