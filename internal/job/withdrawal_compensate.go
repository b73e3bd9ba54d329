package job

import (
	"context"
	"log"
	"time"

	"tixmarket/internal/config"
	"tixmarket/internal/model"
	"tixmarket/internal/repository"
	"tixmarket/internal/service"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// WithdrawalCompensateJob 提现兜底任务
//
// 两类单子需要后台介入：
//  1. needs_compensation=true：补偿事务本身失败过，资金不一致，
//     必须持续重试直到冲回成功
//  2. 卡在 processing 超时的单子：渠道回调丢了，主动向渠道查单
type WithdrawalCompensateJob struct {
	db             *gorm.DB
	withdrawalRepo *repository.WithdrawalRepository
	withdrawalSvc  *service.WithdrawalService
	cfg            *config.Config
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
}

func NewWithdrawalCompensateJob(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *WithdrawalCompensateJob {
	interval := time.Duration(cfg.Business.CompensateIntervalSecond) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &WithdrawalCompensateJob{
		db:             db,
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		withdrawalSvc:  service.NewWithdrawalService(db, rdb, cfg),
		cfg:            cfg,
		stopCh:         make(chan struct{}),
		interval:       interval,
		batchSize:      50,
	}
}

func (j *WithdrawalCompensateJob) Start(ctx context.Context) {
	log.Println("[WithdrawalCompensateJob] 提现兜底任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[WithdrawalCompensateJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[WithdrawalCompensateJob] 任务停止")
			return
		case <-ticker.C:
			j.retryCompensations(ctx)
			j.reconcileStaleProcessing(ctx)
		}
	}
}

func (j *WithdrawalCompensateJob) Stop() {
	close(j.stopCh)
}

// retryCompensations 重试资金不一致的补偿
func (j *WithdrawalCompensateJob) retryCompensations(ctx context.Context) {
	list, err := j.withdrawalRepo.GetNeedsCompensation(ctx, j.batchSize)
	if err != nil {
		log.Printf("[WithdrawalCompensateJob] 查询待补偿提现单失败: %v", err)
		return
	}

	if len(list) == 0 {
		return
	}

	log.Printf("[WithdrawalCompensateJob] 发现 %d 个待补偿提现单", len(list))

	for _, wd := range list {
		reason := wd.FailureReason
		if reason == "" {
			reason = "后台补偿重试"
		}
		if err := j.withdrawalSvc.CompensateByID(ctx, wd.ID, reason, model.ActorTypeSystem); err != nil {
			log.Printf("[严重] 后台补偿重试仍然失败: withdrawalNo=%s, err=%v", wd.WithdrawalNo, err)
			continue
		}
		log.Printf("[WithdrawalCompensateJob] 补偿重试成功: withdrawalNo=%s", wd.WithdrawalNo)
	}
}

// reconcileStaleProcessing 对卡单主动查渠道
func (j *WithdrawalCompensateJob) reconcileStaleProcessing(ctx context.Context) {
	staleMinutes := j.cfg.Business.StaleProcessingMinutes
	if staleMinutes <= 0 {
		staleMinutes = 30
	}
	before := time.Now().Add(-time.Duration(staleMinutes) * time.Minute)

	list, err := j.withdrawalRepo.GetStaleProcessing(ctx, before, j.batchSize)
	if err != nil {
		log.Printf("[WithdrawalCompensateJob] 查询卡单失败: %v", err)
		return
	}

	if len(list) == 0 {
		return
	}

	log.Printf("[WithdrawalCompensateJob] 发现 %d 个处理中超时的提现单，主动查单", len(list))

	for _, wd := range list {
		if err := j.withdrawalSvc.ReconcileStale(ctx, wd); err != nil {
			log.Printf("[WithdrawalCompensateJob] 主动查单失败: withdrawalNo=%s, err=%v", wd.WithdrawalNo, err)
		}
	}
}
