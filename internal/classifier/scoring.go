package classifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"wisefido-crisis/internal/domain"
)

// ScoreResult 计分结果
type ScoreResult struct {
	Score          float64            `json:"score"`
	CategoryScores map[string]float64 `json:"category_scores,omitempty"`
	Answered       int                `json:"answered"`
}

// Score 按问卷声明的计分方式计算总分
// 必答题缺失回答时返回 ErrIncompleteResponse；文本题不计分
func Score(a domain.Assessment, responses []domain.QuestionResponse) (ScoreResult, error) {
	byID := make(map[string]domain.QuestionResponse, len(responses))
	for _, r := range responses {
		byID[r.QuestionID] = r
	}

	var missing []string
	values := make(map[string]float64, len(a.Questions))
	for _, q := range a.Questions {
		r, ok := byID[q.ID]
		if q.Type == domain.QuestionText {
			if q.Required && (!ok || !hasText(r)) {
				missing = append(missing, q.ID)
			}
			continue
		}
		var (
			v       float64
			present bool
		)
		if ok {
			var err error
			v, present, err = numericValue(q, r.Value)
			if err != nil {
				return ScoreResult{}, err
			}
		}
		if !present {
			if q.Required {
				missing = append(missing, q.ID)
			}
			continue
		}
		values[q.ID] = v
	}
	if len(missing) > 0 {
		return ScoreResult{}, fmt.Errorf("%w: missing required questions: %s",
			domain.ErrIncompleteResponse, strings.Join(missing, ", "))
	}

	res := ScoreResult{Answered: len(values)}
	switch a.ScoringMethod {
	case domain.ScoringSum, "":
		for _, v := range values {
			res.Score += v
		}
	case domain.ScoringAverage:
		for _, v := range values {
			res.Score += v
		}
		if len(values) > 0 {
			res.Score /= float64(len(values))
		}
	case domain.ScoringWeightedSum:
		for _, q := range a.Questions {
			if v, ok := values[q.ID]; ok {
				res.Score += weight(q) * v
			}
		}
	case domain.ScoringCategorySum:
		res.CategoryScores = map[string]float64{}
		for _, q := range a.Questions {
			v, ok := values[q.ID]
			if !ok || q.Category == "" {
				continue
			}
			res.CategoryScores[q.Category] += v
			res.Score += v
		}
	default:
		return ScoreResult{}, fmt.Errorf("%w: unsupported scoring method %q", domain.ErrValidation, a.ScoringMethod)
	}
	return res, nil
}

// ScoreRange 根据题目和计分方式推导可能的分数范围
func ScoreRange(a domain.Assessment) (min, max float64) {
	first := true
	for _, q := range a.Questions {
		if q.Type == domain.QuestionText {
			continue
		}
		lo, hi, ok := questionRange(q)
		if !ok {
			continue
		}
		switch a.ScoringMethod {
		case domain.ScoringAverage:
			if first || lo < min {
				min = lo
			}
			if first || hi > max {
				max = hi
			}
		case domain.ScoringWeightedSum:
			w := weight(q)
			wl, wh := w*lo, w*hi
			if wl > wh {
				wl, wh = wh, wl
			}
			min += wl
			max += wh
		case domain.ScoringCategorySum:
			if q.Category == "" {
				continue
			}
			min += lo
			max += hi
		default:
			min += lo
			max += hi
		}
		first = false
	}
	return min, max
}

func questionRange(q domain.Question) (lo, hi float64, ok bool) {
	switch {
	case q.Type == domain.QuestionBoolean:
		return 0, 1, true
	case q.Type == domain.QuestionCheckbox:
		// 多选：任意子集
		for _, o := range q.Options {
			if o.Value < 0 {
				lo += o.Value
			} else {
				hi += o.Value
			}
		}
		return lo, hi, len(q.Options) > 0
	case len(q.Options) > 0:
		lo, hi = q.Options[0].Value, q.Options[0].Value
		for _, o := range q.Options[1:] {
			if o.Value < lo {
				lo = o.Value
			}
			if o.Value > hi {
				hi = o.Value
			}
		}
		return lo, hi, true
	case q.ScaleMin != nil && q.ScaleMax != nil:
		return *q.ScaleMin, *q.ScaleMax, true
	}
	return 0, 0, false
}

func weight(q domain.Question) float64 {
	if q.Weight == nil {
		return 1
	}
	return *q.Weight
}

func hasText(r domain.QuestionResponse) bool {
	if strings.TrimSpace(r.Text) != "" {
		return true
	}
	var s string
	if err := json.Unmarshal(r.Value, &s); err == nil {
		return strings.TrimSpace(s) != ""
	}
	raw := bytes.TrimSpace(r.Value)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// numericValue 将回答转换为数值：数字、布尔、数字字符串、选项ID、多选列表
func numericValue(q domain.Question, raw json.RawMessage) (float64, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, true, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1, true, nil
		}
		return 0, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false, nil
		}
		v, err := stringValue(q, s)
		return v, err == nil, err
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return 0, false, nil
		}
		var total float64
		for _, item := range list {
			v, err := stringValue(q, strings.TrimSpace(item))
			if err != nil {
				return 0, false, err
			}
			total += v
		}
		return total, true, nil
	}
	return 0, false, fmt.Errorf("%w: response for question %s is not numeric", domain.ErrValidation, q.ID)
}

func stringValue(q domain.Question, s string) (float64, error) {
	for _, o := range q.Options {
		if o.ID == s {
			return o.Value, nil
		}
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return 1, nil
	case "false", "no":
		return 0, nil
	}
	for _, o := range q.Options {
		if strings.EqualFold(o.Text, s) {
			return o.Value, nil
		}
	}
	return 0, fmt.Errorf("%w: response %q for question %s is not numeric", domain.ErrValidation, s, q.ID)
}

// sortedDefinitions 返回按 MinScore 排序的副本
func sortedDefinitions(defs []domain.RiskLevelDefinition) []domain.RiskLevelDefinition {
	out := make([]domain.RiskLevelDefinition, len(defs))
	copy(out, defs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinScore < out[j].MinScore })
	return out
}
