// Package alerts raises advisory notifications when a user's current-period
// spend crosses absolute dollar thresholds. Alerts never influence
// enforcement decisions.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/costfence/costfence/internal/ledger"
	"github.com/costfence/costfence/internal/models"
	"github.com/costfence/costfence/internal/period"
	"github.com/costfence/costfence/internal/settings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	errNilDB    = errors.New("alerts: nil db")
	errNotFound = errors.New("alerts: alert not found")
)

// defaultLadderMicros maps each alert level to its default daily spend
// threshold in micro-dollars.
var defaultLadderMicros = map[models.AlertLevel]int64{
	models.AlertInfo:      10_000_000,
	models.AlertWarning:   50_000_000,
	models.AlertCritical:  100_000_000,
	models.AlertEmergency: 500_000_000,
}

// ladderOrder fixes evaluation order from least to most severe.
var ladderOrder = []models.AlertLevel{
	models.AlertInfo,
	models.AlertWarning,
	models.AlertCritical,
	models.AlertEmergency,
}

// Manager creates and queries cost alerts.
type Manager struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	now    func() time.Time
}

// NewManager constructs an alert manager over the shared database handle.
func NewManager(conn *gorm.DB, entries *ledger.Ledger) *Manager {
	return &Manager{
		db:     conn,
		ledger: entries,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ladderMicros returns the active threshold ladder, overlaying configured
// values on the defaults so a partial setting never silences a level.
func ladderMicros() map[models.AlertLevel]int64 {
	ladder := make(map[models.AlertLevel]int64, len(defaultLadderMicros))
	for level, micros := range defaultLadderMicros {
		ladder[level] = micros
	}
	configured, ok := settings.Int64MapValue(settings.AlertLadderKey)
	if !ok {
		return ladder
	}
	for key, micros := range configured {
		level := models.AlertLevel(strings.ToLower(strings.TrimSpace(key)))
		if level.Valid() && micros > 0 {
			ladder[level] = micros
		}
	}
	return ladder
}

// EvaluateUser raises one alert per crossed level for the user's current
// daily window and returns the levels newly raised. Re-evaluation after
// further spend is a no-op for levels already alerted this period.
func (m *Manager) EvaluateUser(ctx context.Context, userID string) ([]models.AlertLevel, error) {
	if m == nil || m.db == nil || m.ledger == nil {
		return nil, errNilDB
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("alerts: user id is required")
	}

	now := m.now()
	start, end := period.Resolve(models.PeriodDaily, now)

	spent, errSpend := m.ledger.SpendMicros(ctx, userID, start, end)
	if errSpend != nil {
		return nil, errSpend
	}

	var raised []models.AlertLevel
	ladder := ladderMicros()
	for _, level := range ladderOrder {
		threshold := ladder[level]
		if threshold <= 0 || spent < threshold {
			continue
		}
		created, errRaise := m.raise(ctx, userID, level, start, threshold, spent)
		if errRaise != nil {
			return raised, errRaise
		}
		if created {
			raised = append(raised, level)
		}
	}
	return raised, nil
}

// raise inserts one alert unless the (user, level, period) slot is already
// taken, reporting whether a new row was created. The unique index settles
// races the existence check misses.
func (m *Manager) raise(ctx context.Context, userID string, level models.AlertLevel, periodStart time.Time, thresholdMicros, currentMicros int64) (bool, error) {
	var count int64
	errCount := m.db.WithContext(ctx).
		Model(&models.CostAlert{}).
		Where("user_id = ? AND level = ? AND period_start = ?", userID, level, periodStart).
		Count(&count).Error
	if errCount != nil {
		return false, errCount
	}
	if count > 0 {
		return false, nil
	}

	alert := models.CostAlert{
		UserID:          userID,
		Level:           level,
		PeriodStart:     periodStart,
		Message:         alertMessage(level, thresholdMicros, currentMicros),
		ThresholdMicros: thresholdMicros,
		CurrentMicros:   currentMicros,
	}
	errCreate := m.db.WithContext(ctx).Create(&alert).Error
	if errCreate != nil {
		if duplicateKeyError(errCreate) {
			return false, nil
		}
		return false, errCreate
	}

	log.Infof("alerts: raised %s alert for user %s (spend=%s threshold=%s)",
		level, userID, dollars(currentMicros), dollars(thresholdMicros))
	return true, nil
}

// ListQuery filters alert listings.
type ListQuery struct {
	UserID             string
	OnlyUnacknowledged bool
	Limit              int
}

// List returns alerts newest first.
func (m *Manager) List(ctx context.Context, query ListQuery) ([]models.CostAlert, error) {
	if m == nil || m.db == nil {
		return nil, errNilDB
	}

	tx := m.db.WithContext(ctx).Model(&models.CostAlert{}).Order("id DESC")
	if userID := strings.TrimSpace(query.UserID); userID != "" {
		tx = tx.Where("user_id = ?", userID)
	}
	if query.OnlyUnacknowledged {
		tx = tx.Where("acknowledged = ?", false)
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}

	var alerts []models.CostAlert
	if errFind := tx.Find(&alerts).Error; errFind != nil {
		return nil, errFind
	}
	return alerts, nil
}

// Acknowledge marks one alert as handled by an operator.
func (m *Manager) Acknowledge(ctx context.Context, alertID uint64) error {
	if m == nil || m.db == nil {
		return errNilDB
	}

	res := m.db.WithContext(ctx).
		Model(&models.CostAlert{}).
		Where("id = ?", alertID).
		Update("acknowledged", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errNotFound
	}
	return nil
}

// duplicateKeyError recognizes unique-index violations across the supported
// dialects.
func duplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// dollars formats micro-dollars for log output.
func dollars(micros int64) string {
	return fmt.Sprintf("$%.2f", float64(micros)/1_000_000)
}

// alertMessage builds the operator-facing description.
func alertMessage(level models.AlertLevel, thresholdMicros, currentMicros int64) string {
	return fmt.Sprintf("daily spend %s crossed the %s threshold (%s)",
		dollars(currentMicros), level, dollars(thresholdMicros))
}
