package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wisefido-crisis/internal/domain"

	"github.com/go-redis/redis/v8"
)

// maxTxRetries WATCH 冲突时的最大重试次数
const maxTxRetries = 5

// RedisSafetyPlansRepo 安全计划 Redis 实现
// 键布局：
//
//	{prefix}plan:{planID}          -> 计划 JSON
//	{prefix}user:{userID}:active   -> 当前 active 计划 ID
//	{prefix}user:{userID}:plans    -> 计划 ID 列表（创建顺序）
type RedisSafetyPlansRepo struct {
	c      *redis.Client
	prefix string
}

func NewRedisSafetyPlansRepo(c *redis.Client, prefix string) *RedisSafetyPlansRepo {
	return &RedisSafetyPlansRepo{c: c, prefix: prefix}
}

var _ SafetyPlansRepository = (*RedisSafetyPlansRepo)(nil)

func (r *RedisSafetyPlansRepo) planKey(planID string) string {
	return r.prefix + "plan:" + planID
}

func (r *RedisSafetyPlansRepo) activeKey(userID string) string {
	return r.prefix + "user:" + userID + ":active"
}

func (r *RedisSafetyPlansRepo) listKey(userID string) string {
	return r.prefix + "user:" + userID + ":plans"
}

// watch 执行乐观事务，冲突时重试
func (r *RedisSafetyPlansRepo) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.c.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: safety plan transaction kept conflicting", domain.ErrConflict)
}

func (r *RedisSafetyPlansRepo) CreatePlan(ctx context.Context, plan *domain.SafetyPlan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal safety plan: %w", err)
	}
	activeKey := r.activeKey(plan.UserID)
	return r.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, activeKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: user %s already has an active safety plan", domain.ErrConflict, plan.UserID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.planKey(plan.ID), data, 0)
			pipe.Set(ctx, activeKey, plan.ID, 0)
			pipe.RPush(ctx, r.listKey(plan.UserID), plan.ID)
			return nil
		})
		return err
	}, activeKey)
}

func (r *RedisSafetyPlansRepo) GetActivePlan(ctx context.Context, userID string) (*domain.SafetyPlan, error) {
	id, err := r.c.Get(ctx, r.activeKey(userID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: no active safety plan for user %s", domain.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to get active safety plan: %w", err)
	}
	return r.GetPlan(ctx, id)
}

func (r *RedisSafetyPlansRepo) GetPlan(ctx context.Context, planID string) (*domain.SafetyPlan, error) {
	return getPlan(ctx, r.c, r.planKey(planID), planID)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// getPlan 同时用于普通客户端和事务内读取
func getPlan(ctx context.Context, c stringGetter, key, planID string) (*domain.SafetyPlan, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: safety plan %s", domain.ErrNotFound, planID)
		}
		return nil, fmt.Errorf("failed to get safety plan: %w", err)
	}
	var plan domain.SafetyPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode safety plan %s: %w", planID, err)
	}
	return &plan, nil
}

func (r *RedisSafetyPlansRepo) UpdatePlan(ctx context.Context, planID string, mutate func(*domain.SafetyPlan) error) (*domain.SafetyPlan, error) {
	key := r.planKey(planID)
	var result *domain.SafetyPlan
	err := r.watch(ctx, func(tx *redis.Tx) error {
		plan, err := getPlan(ctx, tx, key, planID)
		if err != nil {
			return err
		}
		if err := mutate(plan); err != nil {
			return err
		}
		data, err := json.Marshal(plan)
		if err != nil {
			return fmt.Errorf("failed to marshal safety plan: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			result = plan
		}
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RedisSafetyPlansRepo) SupersedeActivePlan(ctx context.Context, userID string, next *domain.SafetyPlan) (*domain.SafetyPlan, error) {
	nextData, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal safety plan: %w", err)
	}
	activeKey := r.activeKey(userID)
	var old *domain.SafetyPlan
	err = r.watch(ctx, func(tx *redis.Tx) error {
		activeID, err := tx.Get(ctx, activeKey).Result()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("%w: no active safety plan for user %s", domain.ErrNotFound, userID)
			}
			return err
		}
		// 旧计划键在读取后才确定，单独 WATCH
		oldKey := r.planKey(activeID)
		if err := tx.Watch(ctx, oldKey).Err(); err != nil {
			return err
		}
		plan, err := getPlan(ctx, tx, oldKey, activeID)
		if err != nil {
			return err
		}
		plan.Status = domain.PlanSuperseded
		plan.SupersededBy = next.ID
		oldData, err := json.Marshal(plan)
		if err != nil {
			return fmt.Errorf("failed to marshal safety plan: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, oldKey, oldData, 0)
			pipe.Set(ctx, r.planKey(next.ID), nextData, 0)
			pipe.Set(ctx, activeKey, next.ID, 0)
			pipe.RPush(ctx, r.listKey(userID), next.ID)
			return nil
		})
		if err == nil {
			old = plan
		}
		return err
	}, activeKey)
	if err != nil {
		return nil, err
	}
	return old, nil
}

func (r *RedisSafetyPlansRepo) ListPlans(ctx context.Context, userID string) ([]*domain.SafetyPlan, error) {
	ids, err := r.c.LRange(ctx, r.listKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list safety plans: %w", err)
	}
	out := []*domain.SafetyPlan{}
	for _, id := range ids {
		plan, err := r.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	return out, nil
}
