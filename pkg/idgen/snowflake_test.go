package idgen

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateOrderNoFormat(t *testing.T) {
	Init(1)

	// 订单号格式固定为 ORD + 22位数字，回调匹配链的正则依赖这个格式
	pattern := regexp.MustCompile(`^ORD\d{22}$`)
	for i := 0; i < 10; i++ {
		no := GenerateOrderNo()
		assert.True(t, pattern.MatchString(no), "orderNo=%s", no)
	}

	assert.Regexp(t, `^WDR\d{22}$`, GenerateWithdrawalNo())
	assert.Regexp(t, `^RFN\d{22}$`, GenerateRefundNo())
	assert.Regexp(t, `^TXN\d{22}$`, GenerateTransactionNo())
}

func TestNextIDUnique(t *testing.T) {
	Init(1)

	const n = 1000
	var mu sync.Mutex
	seen := make(map[int64]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				id := NextID()
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %d", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}
