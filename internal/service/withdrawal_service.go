package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"tixmarket/internal/config"
	"tixmarket/internal/infrastructure/lock"
	"tixmarket/internal/model"
	"tixmarket/internal/provider"
	"tixmarket/internal/repository"
	"tixmarket/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ============================================================================
// 提现引擎
// ============================================================================
//
// 【两阶段设计（刻意为之，不是缺陷）】
//
// 外部打款调用没法和余额扣减包进同一个 ACID 事务（慢、会失败、不可回滚），
// 所以采用先扣款后补偿的 saga 形态：
//
//   事务1：锁余额行 -> 校验 -> 扣款 -> 建单(processing) -> 流水 -> 提交
//   事务外：调用渠道打款（绝不持锁做网络IO）
//   失败时：独立的补偿事务把钱原路冲回（这不是回滚，扣款已经持久化了，
//           是一笔显式的反向操作）
//
// 补偿事务自己失败 = 真实的资金不一致，必须告警并由后台任务兜底重试，
// 绝不静默。
//
// 【event 类型的补偿金额】
// event 提现在创建时就扣了平台费（出账税前总额，单上记净额），
// 补偿冲回的是单上留存的 GrossAmount，与创建时的扣款严格相等。
//
// ============================================================================

type WithdrawalService struct {
	db             transactor
	redisClient    *redis.Client
	cfg            *config.Config
	withdrawalRepo withdrawalStore
	balanceRepo    balanceStore
	txnRepo        transactionStore
	outboxRepo     outboxStore
}

func NewWithdrawalService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *WithdrawalService {
	return &WithdrawalService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		balanceRepo:    repository.NewBalanceRepository(db),
		txnRepo:        repository.NewTransactionRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
	}
}

type CreateWithdrawalRequest struct {
	EntityType   string          `json:"entity_type"`
	EntityID     int64           `json:"entity_id"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	PayoutNumber string          `json:"payout_number" binding:"required"`
	PayoutName   string          `json:"payout_name" binding:"required"`
	Provider     string          `json:"provider"`
}

type WithdrawalResponse struct {
	ID                int64           `json:"id"`
	WithdrawalNo      string          `json:"withdrawal_no"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	ProviderReference string          `json:"provider_reference"`
}

// NetPayoutAmount 实际打款金额：event 类型在提现时收平台费
func NetPayoutAmount(entityType string, gross decimal.Decimal, feeRate float64) decimal.Decimal {
	if entityType != model.EntityTypeEvent {
		return gross
	}
	fee := gross.Mul(decimal.NewFromFloat(feeRate)).Round(2)
	return gross.Sub(fee)
}

// RefundAmount 补偿回冲金额
//
// 创建时扣的是 GrossAmount，冲回也必须是 GrossAmount：净额反推会因为
// 四舍五入差一分（100.25 扣款、净额 94.23，反推只得 100.24），
// 费率改过配置后反推更是彻底错位。只有没记税前金额的老数据才走反推。
func RefundAmount(wd *model.WithdrawalRequest, feeRate float64) decimal.Decimal {
	if wd.GrossAmount.IsPositive() {
		return wd.GrossAmount
	}
	if wd.EntityType != model.EntityTypeEvent {
		return wd.Amount
	}
	return GrossFromNet(wd.Amount, feeRate)
}

// Create 提交提现申请
//
// 余额扣减在事务内提交后才调用外部打款 —— 打款慢且可能失败，
// 不能让它持有余额行锁。
func (s *WithdrawalService) Create(ctx context.Context, req *CreateWithdrawalRequest) (*WithdrawalResponse, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("提现金额必须大于0")
	}
	switch req.EntityType {
	case model.EntityTypeSeller, model.EntityTypeOrganizer, model.EntityTypeEvent:
	default:
		return nil, errors.New("余额主体类型不合法")
	}
	if req.Provider == "" {
		req.Provider = s.cfg.Provider.Default
	}

	reference := uuid.NewString()

	// 同一主体的提现串行化，重复提交挡在事务之前
	withdrawLock := lock.NewWithdrawLock(s.redisClient, req.EntityType, req.EntityID, reference)
	if err := withdrawLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	defer withdrawLock.Unlock(ctx)

	feeRate := s.cfg.Business.FeeRate(req.EntityType)
	netAmount := NetPayoutAmount(req.EntityType, req.Amount, feeRate)

	wd := &model.WithdrawalRequest{
		WithdrawalNo:      idgen.GenerateWithdrawalNo(),
		EntityID:          req.EntityID,
		EntityType:        req.EntityType,
		Amount:            netAmount,
		GrossAmount:       req.Amount,
		PayoutNumber:      req.PayoutNumber,
		PayoutName:        req.PayoutName,
		Status:            model.WithdrawalStatusProcessing,
		Provider:          req.Provider,
		ProviderReference: reference,
	}

	// 事务1：扣款 + 建单 + 流水，提交后扣款即持久化
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.createInTx(ctx, tx, req, wd)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("提现申请已创建: withdrawalNo=%s, entity=%s:%d, gross=%s, net=%s",
		wd.WithdrawalNo, req.EntityType, req.EntityID, req.Amount.String(), netAmount.String())

	// 事务外调用外部打款
	adapter, err := provider.Get(wd.Provider)
	if err != nil {
		s.CompensateByID(ctx, wd.ID, "渠道不存在: "+wd.Provider, model.ActorTypeSystem)
		return nil, err
	}

	payoutResult, err := adapter.Payout(ctx, &provider.PayoutRequest{
		Reference:    reference,
		Amount:       netAmount,
		Currency:     s.cfg.Business.Currency,
		PayoutNumber: req.PayoutNumber,
		PayoutName:   req.PayoutName,
	})
	if err != nil {
		s.CompensateByID(ctx, wd.ID, "外部打款调用失败: "+err.Error(), model.ActorTypeSystem)
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderCall, err)
	}

	normalized := provider.Normalize(payoutResult.RawStatus)
	if normalized == model.PaymentStatusFailed || normalized == model.PaymentStatusCancelled {
		// 渠道同步拒绝
		s.CompensateByID(ctx, wd.ID, "渠道拒绝打款: "+payoutResult.RawStatus, model.ActorTypeSystem)
		return nil, fmt.Errorf("%w: 渠道拒绝打款(%s)", provider.ErrProviderCall, payoutResult.RawStatus)
	}

	// 渠道受理成功，留存原始响应，等异步回调出终态
	if rawJSON, err := json.Marshal(payoutResult.Raw); err == nil && len(payoutResult.Raw) > 0 {
		if err := s.withdrawalRepo.Updates(ctx, nil, wd.ID, map[string]interface{}{
			"metadata": datatypes.JSON(rawJSON),
		}); err != nil {
			log.Printf("[Withdrawal] 留存渠道响应失败: withdrawalNo=%s, err=%v", wd.WithdrawalNo, err)
		}
	}

	return &WithdrawalResponse{
		ID:                wd.ID,
		WithdrawalNo:      wd.WithdrawalNo,
		Amount:            netAmount,
		Status:            model.WithdrawalStatusProcessing,
		ProviderReference: reference,
	}, nil
}

// createInTx 扣款 + 建单(processing) + 流水（调用方负责事务与分布式锁）
//
// 扣的是税前总额 req.Amount，单上的 Amount 是打款净额。
func (s *WithdrawalService) createInTx(ctx context.Context, tx *gorm.DB, req *CreateWithdrawalRequest, wd *model.WithdrawalRequest) error {
	balanceBefore, err := s.balanceRepo.GetForUpdate(ctx, tx, req.EntityType, req.EntityID)
	if err != nil {
		return err
	}
	if req.Amount.GreaterThan(balanceBefore) {
		return repository.ErrBalanceNotEnough
	}
	if err := s.balanceRepo.Debit(ctx, tx, req.EntityType, req.EntityID, req.Amount); err != nil {
		return err
	}
	if err := s.withdrawalRepo.Create(ctx, tx, wd); err != nil {
		return fmt.Errorf("创建提现申请失败: %w", err)
	}
	if err := s.txnRepo.Create(ctx, tx, &model.BalanceTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		EntityType:    req.EntityType,
		EntityID:      req.EntityID,
		RefNo:         wd.WithdrawalNo,
		Amount:        req.Amount.Neg(),
		Type:          model.TransactionTypeWithdraw,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceBefore.Sub(req.Amount),
		Remark:        fmt.Sprintf("提现出账-%s", wd.WithdrawalNo),
	}); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}
	return writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
		model.NotifyEventWithdrawalCreated, wd.WithdrawalNo, map[string]interface{}{
			"withdrawal_no": wd.WithdrawalNo,
			"entity_type":   req.EntityType,
			"entity_id":     req.EntityID,
			"amount":        wd.Amount,
		})
}

// compensateInTx 补偿回冲（调用方已持有提现行锁，且已确认非终态）
//
// 这是显式的反向操作：回冲余额 + 标记 failed + 流水，一个事务内完成。
func (s *WithdrawalService) compensateInTx(ctx context.Context, tx *gorm.DB, wd *model.WithdrawalRequest, reason, actor string) error {
	feeRate := s.cfg.Business.FeeRate(wd.EntityType)
	refund := RefundAmount(wd, feeRate)

	balanceBefore, err := s.balanceRepo.GetForUpdate(ctx, tx, wd.EntityType, wd.EntityID)
	if err != nil {
		return err
	}
	if err := s.balanceRepo.Credit(ctx, tx, wd.EntityType, wd.EntityID, refund); err != nil {
		return err
	}
	if err := s.txnRepo.Create(ctx, tx, &model.BalanceTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		EntityType:    wd.EntityType,
		EntityID:      wd.EntityID,
		RefNo:         wd.WithdrawalNo,
		Amount:        refund,
		Type:          model.TransactionTypeWithdrawRefund,
		BalanceBefore: balanceBefore,
		BalanceAfter:  balanceBefore.Add(refund),
		Remark:        fmt.Sprintf("提现失败回冲-%s", reason),
	}); err != nil {
		return err
	}

	now := time.Now()
	if err := s.withdrawalRepo.Updates(ctx, tx, wd.ID, map[string]interface{}{
		"status":             model.WithdrawalStatusFailed,
		"failure_reason":     reason,
		"needs_compensation": false,
		"processed_at":       &now,
		"processed_by":       actor,
	}); err != nil {
		return err
	}

	return writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
		model.NotifyEventWithdrawalFailed, wd.WithdrawalNo, map[string]interface{}{
			"withdrawal_no": wd.WithdrawalNo,
			"entity_type":   wd.EntityType,
			"entity_id":     wd.EntityID,
			"refund_amount": refund,
			"reason":        reason,
		})
}

// CompensateByID 独立补偿事务（幂等：终态单直接跳过）
//
// 补偿失败是真实的资金不一致：打告警日志、写告警消息、置兜底标记，
// 由后台任务继续重试，绝不静默吞掉。
func (s *WithdrawalService) CompensateByID(ctx context.Context, withdrawalID int64, reason, actor string) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		wd, err := s.withdrawalRepo.GetByIDForUpdate(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		if model.IsTerminalWithdrawalStatus(wd.Status) {
			return nil
		}
		return s.compensateInTx(ctx, tx, wd, reason, actor)
	})
	if err == nil {
		return nil
	}

	log.Printf("[严重] 提现补偿失败，资金不一致需人工介入: withdrawalID=%d, reason=%s, err=%v",
		withdrawalID, reason, err)

	// 尽力而为：置兜底标记 + 写告警消息，失败也只能继续靠后台任务
	if markErr := s.withdrawalRepo.Updates(ctx, nil, withdrawalID, map[string]interface{}{
		"needs_compensation": true,
		"failure_reason":     reason,
	}); markErr != nil {
		log.Printf("[严重] 置补偿兜底标记失败: withdrawalID=%d, err=%v", withdrawalID, markErr)
	}
	if alertErr := writeNotify(ctx, nil, s.outboxRepo, s.cfg.Kafka.Topic.Alert,
		model.NotifyEventCompensationStuck, fmt.Sprintf("%d", withdrawalID), map[string]interface{}{
			"withdrawal_id": withdrawalID,
			"reason":        reason,
			"error":         err.Error(),
		}); alertErr != nil {
		log.Printf("[严重] 写补偿告警失败: withdrawalID=%d, err=%v", withdrawalID, alertErr)
	}

	return err
}

// WithdrawalCallbackResult 渠道打款回调处理结果
type WithdrawalCallbackResult struct {
	Matched          bool   `json:"matched"`
	AlreadyProcessed bool   `json:"already_processed"`
	WithdrawalNo     string `json:"withdrawal_no,omitempty"`
	Status           string `json:"status,omitempty"`
}

// HandleProviderCallback 处理渠道打款结果 webhook
//
// 与订单回调同一套幂等纪律：锁行 -> 终态跳过 -> 归一化 -> 应用。
// completed 不再动余额（扣款在创建时已完成）；failed 走补偿回冲。
func (s *WithdrawalService) HandleProviderCallback(ctx context.Context, providerName string, payload []byte, signature string) (*WithdrawalCallbackResult, error) {
	adapter, err := provider.Get(providerName)
	if err != nil {
		return nil, err
	}
	if !adapter.VerifySignature(payload, signature) {
		return nil, ErrInvalidSignature
	}

	var body map[string]interface{}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	reference := pickString(body, "reference", "tracking_id", "file_id")
	rawStatus := extractRawStatus(body)
	if reference == "" {
		return nil, fmt.Errorf("%w: 缺少 reference", ErrInvalidPayload)
	}

	return s.applyStatusByReference(ctx, reference, rawStatus, model.ActorTypeProvider)
}

// applyStatusByReference 按幂等引用应用打款终态（回调与主动查单共用）
func (s *WithdrawalService) applyStatusByReference(ctx context.Context, reference, rawStatus, actor string) (*WithdrawalCallbackResult, error) {
	result := &WithdrawalCallbackResult{}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		wd, err := s.withdrawalRepo.GetByReferenceForUpdate(ctx, tx, reference)
		if err != nil {
			return err
		}
		result.Matched = true
		result.WithdrawalNo = wd.WithdrawalNo
		result.Status = wd.Status

		if model.IsTerminalWithdrawalStatus(wd.Status) {
			result.AlreadyProcessed = true
			return nil
		}

		switch provider.Normalize(rawStatus) {
		case model.PaymentStatusCompleted:
			now := time.Now()
			if err := s.withdrawalRepo.Updates(ctx, tx, wd.ID, map[string]interface{}{
				"status":       model.WithdrawalStatusCompleted,
				"processed_at": &now,
				"processed_by": actor,
			}); err != nil {
				return err
			}
			result.Status = model.WithdrawalStatusCompleted
			return writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
				model.NotifyEventWithdrawalCompleted, wd.WithdrawalNo, map[string]interface{}{
					"withdrawal_no": wd.WithdrawalNo,
					"entity_type":   wd.EntityType,
					"entity_id":     wd.EntityID,
					"amount":        wd.Amount,
				})

		case model.PaymentStatusFailed, model.PaymentStatusCancelled:
			if err := s.compensateInTx(ctx, tx, wd, "渠道回传打款失败: "+rawStatus, actor); err != nil {
				return err
			}
			result.Status = model.WithdrawalStatusFailed
			return nil

		default:
			// 仍在处理中，等下一次回调/查单
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawalNotFound) {
			log.Printf("[Withdrawal] 回调未匹配到提现单: reference=%s", reference)
			return &WithdrawalCallbackResult{Matched: false}, nil
		}
		return nil, err
	}
	return result, nil
}

// AdminOverride 管理员强制终态
//
// 卡在 processing/pending 的单子没有渠道回调时的唯一人工出口。
// 同样要过幂等守卫：已终态的单子明确报冲突（区别于 webhook 的静默成功）。
func (s *WithdrawalService) AdminOverride(ctx context.Context, adminID int64, withdrawalID int64, targetStatus, reason string) (*model.WithdrawalRequest, error) {
	if targetStatus != model.WithdrawalStatusCompleted && targetStatus != model.WithdrawalStatusFailed {
		return nil, errors.New("目标状态只能是 completed 或 failed")
	}
	if reason == "" {
		return nil, errors.New("必须填写操作原因")
	}

	actor := fmt.Sprintf("admin:%d", adminID)
	var updated *model.WithdrawalRequest

	err := s.db.Transaction(func(tx *gorm.DB) error {
		wd, err := s.withdrawalRepo.GetByIDForUpdate(ctx, tx, withdrawalID)
		if err != nil {
			return err
		}
		if model.IsTerminalWithdrawalStatus(wd.Status) {
			return repository.ErrWithdrawalTerminal
		}

		if targetStatus == model.WithdrawalStatusFailed {
			if err := s.compensateInTx(ctx, tx, wd, "管理员强制失败: "+reason, actor); err != nil {
				return err
			}
			wd.Status = model.WithdrawalStatusFailed
		} else {
			now := time.Now()
			if err := s.withdrawalRepo.Updates(ctx, tx, wd.ID, map[string]interface{}{
				"status":         model.WithdrawalStatusCompleted,
				"failure_reason": "",
				"processed_at":   &now,
				"processed_by":   actor,
			}); err != nil {
				return err
			}
			wd.Status = model.WithdrawalStatusCompleted
			if err := writeNotify(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Notify,
				model.NotifyEventWithdrawalCompleted, wd.WithdrawalNo, map[string]interface{}{
					"withdrawal_no": wd.WithdrawalNo,
					"entity_type":   wd.EntityType,
					"entity_id":     wd.EntityID,
					"amount":        wd.Amount,
					"processed_by":  actor,
				}); err != nil {
				return err
			}
		}

		updated = wd
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("管理员强制终态: withdrawalID=%d, target=%s, admin=%d, reason=%s",
		withdrawalID, targetStatus, adminID, reason)
	return updated, nil
}

// ReconcileStale 对卡在 processing 的单子主动向渠道查单（后台任务调用）
func (s *WithdrawalService) ReconcileStale(ctx context.Context, wd *model.WithdrawalRequest) error {
	adapter, err := provider.Get(wd.Provider)
	if err != nil {
		return err
	}
	statusResult, err := adapter.CheckStatus(ctx, wd.ProviderReference)
	if err != nil {
		return fmt.Errorf("查单失败: %w", err)
	}
	_, err = s.applyStatusByReference(ctx, wd.ProviderReference, statusResult.RawStatus, model.ActorTypeSystem)
	return err
}

func (s *WithdrawalService) GetByID(ctx context.Context, id int64) (*model.WithdrawalRequest, error) {
	return s.withdrawalRepo.GetByID(ctx, id)
}

func (s *WithdrawalService) ListByEntity(ctx context.Context, entityType string, entityID int64, page, pageSize int) ([]*model.WithdrawalRequest, int64, error) {
	return s.withdrawalRepo.ListByEntity(ctx, entityType, entityID, page, pageSize)
}
