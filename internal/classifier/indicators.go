package classifier

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"wisefido-crisis/internal/domain"
)

// 危机指示词（指示词名称本身也是匹配短语）
const (
	IndicatorSuicide          = "suicide"
	IndicatorSelfHarm         = "self_harm"
	IndicatorHomicide         = "homicide"
	IndicatorPsychosis        = "psychosis"
	IndicatorSevereDepression = "severe_depression"
)

// ScanInput 可扫描的输入（封闭集合：评估回答、短信正文、结构化备注）
type ScanInput interface {
	ScanText() string
}

// AssessmentResponses 评估回答，序列化为 JSON 后扫描
type AssessmentResponses []domain.QuestionResponse

func (r AssessmentResponses) ScanText() string {
	b, err := json.Marshal([]domain.QuestionResponse(r))
	if err != nil {
		// RawMessage 非法时退化为逐条拼接，宁可多报不可漏报
		var sb strings.Builder
		for _, q := range r {
			sb.WriteString(q.QuestionID)
			sb.WriteByte(' ')
			sb.Write(q.Value)
			sb.WriteByte(' ')
			sb.WriteString(q.Text)
			sb.WriteByte('\n')
		}
		return sb.String()
	}
	return string(b)
}

// MessageBody 入站短信正文
type MessageBody string

func (m MessageBody) ScanText() string { return string(m) }

// StructuredNote 结构化备注（如 {"note": "..."}）
type StructuredNote map[string]string

func (n StructuredNote) ScanText() string {
	b, _ := json.Marshal(map[string]string(n))
	return string(b)
}

var defaultPhrases = map[string][]string{
	IndicatorSuicide: {
		"suicide", "suicidal", "kill myself", "end it all", "end my life", "want to die",
		"better off dead", "take my own life", "no reason to live",
	},
	IndicatorSelfHarm: {
		"self_harm", "hurt myself", "harm myself", "cutting myself", "cut myself",
	},
	IndicatorHomicide: {
		"homicide", "kill someone", "hurt someone", "kill them", "kill him", "kill her",
	},
	IndicatorPsychosis: {
		"psychosis", "psychotic", "hearing voices", "voices telling me",
	},
	IndicatorSevereDepression: {
		"severe_depression", "hopeless", "can't go on", "cannot go on",
	},
}

// indicatorFloor 命中指示词时隐含的最低风险等级
var indicatorFloor = map[string]domain.RiskLevel{
	IndicatorSuicide:          domain.RiskCrisis,
	IndicatorHomicide:         domain.RiskCrisis,
	IndicatorSelfHarm:         domain.RiskSevere,
	IndicatorPsychosis:        domain.RiskSevere,
	IndicatorSevereDepression: domain.RiskHigh,
}

// Vocabulary 指示词表：不区分大小写的子串匹配，故意宽松（漏报比误报代价更高）
type Vocabulary struct {
	phrases map[string][]string // indicator -> 归一化短语
}

// DefaultVocabulary 内置词表
func DefaultVocabulary() *Vocabulary {
	v := &Vocabulary{phrases: map[string][]string{}}
	for ind, list := range defaultPhrases {
		v.add(ind, list...)
	}
	return v
}

// WithPhrases 返回追加了短语的新词表（可新增指示词）
func (v *Vocabulary) WithPhrases(indicator string, phrases ...string) *Vocabulary {
	out := &Vocabulary{phrases: make(map[string][]string, len(v.phrases)+1)}
	for ind, list := range v.phrases {
		out.phrases[ind] = append([]string(nil), list...)
	}
	out.add(indicator, phrases...)
	return out
}

func (v *Vocabulary) add(indicator string, phrases ...string) {
	indicator = strings.ToLower(strings.TrimSpace(indicator))
	if indicator == "" {
		return
	}
	list := v.phrases[indicator]
	if len(list) == 0 {
		list = append(list, normalize(indicator))
	}
	for _, p := range phrases {
		if n := normalize(p); n != "" {
			list = append(list, n)
		}
	}
	v.phrases[indicator] = list
}

// Indicators 词表中的全部指示词（排序）
func (v *Vocabulary) Indicators() []string {
	out := make([]string, 0, len(v.phrases))
	for ind := range v.phrases {
		out = append(out, ind)
	}
	sort.Strings(out)
	return out
}

// Scan 返回命中的指示词集合（排序、去重）；无命中时返回空切片
func (v *Vocabulary) Scan(input ScanInput) []string {
	matched := []string{}
	if input == nil {
		return matched
	}
	text := normalize(input.ScanText())
	if text == "" {
		return matched
	}
	for ind, list := range v.phrases {
		for _, p := range list {
			if strings.Contains(text, p) {
				matched = append(matched, ind)
				break
			}
		}
	}
	sort.Strings(matched)
	return matched
}

var defaultVocabulary = DefaultVocabulary()

// ScanForCrisisIndicators 使用内置词表扫描
func ScanForCrisisIndicators(input ScanInput) []string {
	return defaultVocabulary.Scan(input)
}

// IndicatorLevel 指示词隐含的最低风险等级（未知指示词按 High 处理）
func IndicatorLevel(indicators []string) domain.RiskLevel {
	level := domain.RiskNone
	for _, ind := range indicators {
		floor, ok := indicatorFloor[ind]
		if !ok {
			floor = domain.RiskHigh
		}
		if floor > level {
			level = floor
		}
	}
	return level
}

// ParsePhraseOverrides 解析额外短语配置，格式："suicide:phrase a|phrase b;self_harm:phrase c"
func ParsePhraseOverrides(v *Vocabulary, raw string) (*Vocabulary, error) {
	out := v
	for _, group := range strings.Split(raw, ";") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		ind, phrases, ok := strings.Cut(group, ":")
		if !ok || strings.TrimSpace(ind) == "" {
			return nil, fmt.Errorf("%w: malformed indicator phrase group %q", domain.ErrValidation, group)
		}
		out = out.WithPhrases(ind, strings.Split(phrases, "|")...)
	}
	return out, nil
}

var normalizer = strings.NewReplacer("_", " ", "-", " ", "’", "'", "\n", " ", "\t", " ", "\\n", " ")

// normalize 小写化，下划线/连字符统一为空格并压缩空白
func normalize(s string) string {
	s = normalizer.Replace(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}
