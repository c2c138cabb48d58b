package classifier

import (
	"fmt"

	"wisefido-crisis/internal/domain"
)

// Classification 分类结果
type Classification struct {
	Score          float64                     `json:"score"`
	CategoryScores map[string]float64          `json:"category_scores,omitempty"`
	Level          domain.RiskLevel            `json:"risk_level"`
	Definition     *domain.RiskLevelDefinition `json:"definition,omitempty"`
	// Clamped 分数落在全部区间之外，被钳制到最近的端点等级（数据质量告警，不是错误）
	Clamped bool `json:"clamped,omitempty"`
}

// ValidateDefinitions 校验区间：连续、不重叠、非空、等级递增，并覆盖 [lo, hi]
// 区间为 [min, max)，最高区间在 max 处闭合
func ValidateDefinitions(defs []domain.RiskLevelDefinition, lo, hi float64) error {
	if len(defs) == 0 {
		return fmt.Errorf("%w: no risk level definitions", domain.ErrValidation)
	}
	sorted := sortedDefinitions(defs)
	for i, d := range sorted {
		if d.MinScore >= d.MaxScore {
			return fmt.Errorf("%w: empty interval [%g,%g) for %s", domain.ErrValidation, d.MinScore, d.MaxScore, d.Level)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if d.MinScore < prev.MaxScore {
			return fmt.Errorf("%w: intervals overlap: %s [%g,%g) and %s [%g,%g)", domain.ErrValidation,
				prev.Level, prev.MinScore, prev.MaxScore, d.Level, d.MinScore, d.MaxScore)
		}
		if d.MinScore > prev.MaxScore {
			return fmt.Errorf("%w: gap between %g and %g", domain.ErrValidation, prev.MaxScore, d.MinScore)
		}
		if d.Level <= prev.Level {
			return fmt.Errorf("%w: risk levels must increase with score (%s after %s)", domain.ErrValidation, d.Level, prev.Level)
		}
	}
	first, last := sorted[0], sorted[len(sorted)-1]
	if first.MinScore > lo || last.MaxScore < hi {
		return fmt.Errorf("%w: definitions cover [%g,%g] but score range is [%g,%g]", domain.ErrValidation,
			first.MinScore, last.MaxScore, lo, hi)
	}
	return nil
}

// LevelForScore 按区间查找风险等级；越界分数钳制到端点等级并标记 Clamped
func LevelForScore(score float64, defs []domain.RiskLevelDefinition) (Classification, error) {
	if len(defs) == 0 {
		return Classification{}, fmt.Errorf("%w: no risk level definitions", domain.ErrValidation)
	}
	sorted := sortedDefinitions(defs)
	result := Classification{Score: score}
	pick := func(d domain.RiskLevelDefinition, clamped bool) (Classification, error) {
		result.Level = d.Level
		result.Definition = &d
		result.Clamped = clamped
		return result, nil
	}

	first, last := sorted[0], sorted[len(sorted)-1]
	if score < first.MinScore {
		return pick(first, true)
	}
	for _, d := range sorted {
		if score >= d.MinScore && score < d.MaxScore {
			return pick(d, false)
		}
	}
	if score == last.MaxScore {
		return pick(last, false)
	}
	if score > last.MaxScore {
		return pick(last, true)
	}
	// 区间存在空洞（未校验的定义）：取不超过该分数的最高区间
	best := first
	for _, d := range sorted {
		if d.MinScore <= score {
			best = d
		}
	}
	return pick(best, true)
}

// ClassifyAssessment 校验问卷区间定义、计分并映射风险等级
func ClassifyAssessment(a domain.Assessment, responses []domain.QuestionResponse) (Classification, error) {
	lo, hi := ScoreRange(a)
	if err := ValidateDefinitions(a.RiskLevels, lo, hi); err != nil {
		return Classification{}, fmt.Errorf("assessment %s: %w", a.ID, err)
	}
	scored, err := Score(a, responses)
	if err != nil {
		return Classification{}, err
	}
	c, err := LevelForScore(scored.Score, a.RiskLevels)
	if err != nil {
		return Classification{}, err
	}
	c.CategoryScores = scored.CategoryScores
	return c, nil
}
