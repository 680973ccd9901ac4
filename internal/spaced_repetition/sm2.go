package spaced_repetition

import (
	"time"
)

// SM2 maps SuperMemo-2 quality responses onto the 0..MaxLevel mastery scale stored with each word
type SM2 struct {
	// Пороговое значение "хорошего ответа"
	PassThreshold QualityResponse
	// Максимальный уровень освоения
	MaxLevel int
	// Интервалы повторения в днях по уровням
	Intervals []int
}

// NewSM2 создает новый экземпляр SM2 с настройками по умолчанию
func NewSM2() *SM2 {
	return &SM2{
		PassThreshold: QualityCorrectDifficult,
		MaxLevel:      5,
		Intervals:     []int{0, 1, 3, 7, 14, 30},
	}
}

// QualityResponse represents the quality of response in SM-2
type QualityResponse int

const (
	// Complete blackout, unable to recall
	QualityBlackout QualityResponse = 0
	// Incorrect response but remembered upon seeing the correct answer
	QualityIncorrect QualityResponse = 1
	// Incorrect response but the correct answer felt familiar
	QualityIncorrectFamiliar QualityResponse = 2
	// Correct response but required significant effort
	QualityCorrectDifficult QualityResponse = 3
	// Correct response after some hesitation
	QualityCorrectHesitation QualityResponse = 4
	// Perfect response with no hesitation
	QualityPerfect QualityResponse = 5
)

// Valid reports whether q is on the 0..5 scale
func (q QualityResponse) Valid() bool {
	return q >= QualityBlackout && q <= QualityPerfect
}

// Process returns the mastery level after answering with the given quality.
// A pass raises the level by one, or by two for a perfect answer on a fresh word;
// a fail drops it by one. The result stays within 0..MaxLevel.
func (sm *SM2) Process(level int, quality QualityResponse) int {
	if quality >= sm.PassThreshold {
		step := 1
		if level == 0 && quality == QualityPerfect {
			step = 2
		}
		level += step
	} else {
		level--
	}
	return sm.clamp(level)
}

// Interval returns the review interval in days for a level
func (sm *SM2) Interval(level int) int {
	level = sm.clamp(level)
	if level >= len(sm.Intervals) {
		return sm.Intervals[len(sm.Intervals)-1]
	}
	return sm.Intervals[level]
}

// NextReview returns when a word at the given level is due again
func (sm *SM2) NextReview(level int, from time.Time) time.Time {
	return from.AddDate(0, 0, sm.Interval(level))
}

// IsMastered determines if a word is considered "mastered"
func (sm *SM2) IsMastered(level int) bool {
	return level >= sm.MaxLevel
}

// CalculateQuality определяет качество ответа на основе точности (0.0 - 1.0)
func (sm *SM2) CalculateQuality(accuracy float64) QualityResponse {
	if accuracy <= 0 {
		return QualityBlackout // Полностью неверный ответ
	}
	q := QualityResponse(accuracy * 5)
	if q > QualityPerfect {
		q = QualityPerfect
	}
	return q
}

func (sm *SM2) clamp(level int) int {
	if level < 0 {
		return 0
	}
	if level > sm.MaxLevel {
		return sm.MaxLevel
	}
	return level
}
