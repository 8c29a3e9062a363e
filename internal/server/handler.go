package server

import (
	"context"
	"errors"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verte-zerg/trainviz/internal/model"
)

const (
	paramsKey       = "trainParams"
	journalErrorKey = "journalError"
	journalTimeout  = 2 * time.Second

	statusClientClosed = 499
)

// trainRequest mirrors the JSON body. Numbers decode as floats so that
// non-integral epochs reach validation instead of failing to bind.
type trainRequest struct {
	Epochs       *float64 `json:"epochs"`
	LearningRate *float64 `json:"learningRate"`
	BatchSize    *float64 `json:"batchSize"`
}

type trainResponse struct {
	Success bool                `json:"success"`
	Data    []model.EpochRecord `json:"data"`
}

type trainHandler struct {
	gen     CurveGenerator
	journal Journal
	latency func() time.Duration
	now     func() time.Time
	errLog  *log.Logger
}

func (h *trainHandler) train(c *gin.Context) {
	var req trainRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	params, err := req.params()
	c.Set(paramsKey, params)
	if err != nil {
		h.fail(c, http.StatusBadRequest, err.Error())
		return
	}

	data := h.gen.Generate(params)

	if h.latency != nil {
		if !sleepContext(c.Request.Context(), h.latency()) {
			c.Set(journalErrorKey, "client closed request")
			c.AbortWithStatus(statusClientClosed)
			return
		}
	}
	c.JSON(http.StatusOK, trainResponse{Success: true, Data: data})
}

func (h *trainHandler) fail(c *gin.Context, status int, msg string) {
	c.Set(journalErrorKey, msg)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// journalRequest records the outcome of the training handler. Panics are
// recorded as 500 and re-raised for the recovery middleware.
func (h *trainHandler) journalRequest(c *gin.Context) {
	if h.journal == nil {
		c.Next()
		return
	}
	start := h.now()
	defer func() {
		status := c.Writer.Status()
		msg := c.GetString(journalErrorKey)
		recovered := recover()
		if recovered != nil {
			status = http.StatusInternalServerError
			msg = "Internal server error"
		}
		h.record(c, start, status, msg)
		if recovered != nil {
			panic(recovered)
		}
	}()
	c.Next()
}

func (h *trainHandler) record(c *gin.Context, start time.Time, status int, msg string) {
	entry := model.RequestEntry{
		RequestID:  c.GetString(requestIDKey),
		ReceivedAt: start,
		Status:     status,
		Error:      msg,
		DurationMs: h.now().Sub(start).Milliseconds(),
	}
	if v, ok := c.Get(paramsKey); ok {
		p := v.(model.TrainingParams)
		entry.Epochs = p.Epochs
		entry.LearningRate = p.LearningRate
		entry.BatchSize = p.BatchSize
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := h.journal.RecordRequest(ctx, entry); err != nil {
		h.errLog.Printf("failed to journal request %s: %v", entry.RequestID, err)
	}
}

// params applies defaults and validates.
func (r trainRequest) params() (model.TrainingParams, error) {
	p := model.DefaultParams()
	if r.LearningRate != nil {
		p.LearningRate = *r.LearningRate
	}
	if r.Epochs != nil {
		if !isWhole(*r.Epochs) {
			return p, &model.ValidationError{Field: "epochs", Message: model.ErrMsgEpochs}
		}
		p.Epochs = int(*r.Epochs)
	}
	if r.BatchSize != nil {
		if !isWhole(*r.BatchSize) {
			// Zero is never a valid batch size, so this reports the first
			// failing field in validation order.
			return p, model.TrainingParams{Epochs: p.Epochs, LearningRate: p.LearningRate}.Validate()
		}
		p.BatchSize = int(*r.BatchSize)
	}
	return p, p.Validate()
}

func isWhole(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v) && v == math.Trunc(v) && math.Abs(v) < 1<<31
}

// UniformLatency returns a delay source drawing uniformly from [lo, hi].
func UniformLatency(lo, hi time.Duration, seed int64) func() time.Duration {
	if hi < lo {
		lo, hi = hi, lo
	}
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(seed))
	return func() time.Duration {
		if hi == lo {
			return lo
		}
		mu.Lock()
		defer mu.Unlock()
		return lo + time.Duration(rnd.Int63n(int64(hi-lo)+1))
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
