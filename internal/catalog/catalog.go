package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"wisefido-crisis/internal/domain"
)

// Filter 资源过滤条件（零值表示不过滤）
type Filter struct {
	ServiceType  string // 如 "suicide_prevention"
	CoverageCode string // 如 "US"、"CA"
	Language     string // 不区分大小写
	NationalOnly bool
	Only24x7     bool
	MaxPriority  int // >0 时只保留 priority_level <= MaxPriority
}

// EmergencyContactsMaxPriority 紧急联系人视图的优先级上限
const EmergencyContactsMaxPriority = 2

func (f Filter) match(r domain.CrisisResource) bool {
	if f.MaxPriority > 0 && r.PriorityLevel > f.MaxPriority {
		return false
	}
	if f.NationalOnly && !r.IsNational {
		return false
	}
	if f.Only24x7 && r.Hours != domain.Hours24x7 {
		return false
	}
	if f.ServiceType != "" && !containsFold(r.ServiceTypes, f.ServiceType) {
		return false
	}
	if f.Language != "" && !containsFold(r.Languages, f.Language) {
		return false
	}
	if f.CoverageCode != "" && !r.IsNational && !containsFold(r.Coverage.Codes, f.CoverageCode) {
		return false
	}
	return true
}

// Catalog 危机资源目录（只读为主，支持运行期追加）
type Catalog struct {
	mu        sync.RWMutex
	resources map[string]domain.CrisisResource
}

// New 创建资源目录；重复 ID 或缺少名称/电话的资源返回错误
func New(resources ...domain.CrisisResource) (*Catalog, error) {
	c := &Catalog{resources: make(map[string]domain.CrisisResource, len(resources))}
	for _, r := range resources {
		if err := c.Add(r); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewDefault 内置资源目录
func NewDefault() *Catalog {
	c, err := New(DefaultResources()...)
	if err != nil {
		panic(err)
	}
	return c
}

// Add 追加资源
func (c *Catalog) Add(r domain.CrisisResource) error {
	if strings.TrimSpace(r.ID) == "" || strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: resource id and name are required", domain.ErrValidation)
	}
	if r.Phone == "" && r.Text == "" && r.Website == "" {
		return fmt.Errorf("%w: resource %s has no contact channel", domain.ErrValidation, r.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.resources[r.ID]; exists {
		return fmt.Errorf("%w: duplicate resource id %s", domain.ErrConflict, r.ID)
	}
	c.resources[r.ID] = r
	return nil
}

// Get 按 ID 查询
func (c *Catalog) Get(id string) (domain.CrisisResource, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resources[id]
	if !ok {
		return domain.CrisisResource{}, fmt.Errorf("%w: resource %s", domain.ErrNotFound, id)
	}
	return r, nil
}

// All 全部资源，按 (priority_level, id) 排序
func (c *Catalog) All() []domain.CrisisResource {
	return c.TopResources(0, Filter{})
}

// EmergencyContacts 紧急联系人：priority_level <= 2，按优先级升序
func (c *Catalog) EmergencyContacts() []domain.CrisisResource {
	return c.TopResources(0, Filter{MaxPriority: EmergencyContactsMaxPriority})
}

// TopResources 先过滤再按 (priority_level asc, id asc) 排序，最多返回 n 个（n<=0 不限）
func (c *Catalog) TopResources(n int, filter Filter) []domain.CrisisResource {
	c.mu.RLock()
	out := make([]domain.CrisisResource, 0, len(c.resources))
	for _, r := range c.resources {
		if filter.match(r) {
			out = append(out, r)
		}
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityLevel != out[j].PriorityLevel {
			return out[i].PriorityLevel < out[j].PriorityLevel
		}
		return out[i].ID < out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ByIDs 按给定顺序返回存在的资源（用于风险等级定义中引用的资源）
func (c *Catalog) ByIDs(ids []string) []domain.CrisisResource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.CrisisResource, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.resources[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// DefaultResources 内置的全国性危机资源
func DefaultResources() []domain.CrisisResource {
	return []domain.CrisisResource{
		{
			ID:             "988-lifeline",
			Name:           "988 Suicide & Crisis Lifeline",
			Organization:   "SAMHSA",
			Phone:          "988",
			Text:           "Text HOME to 741741",
			Website:        "https://988lifeline.org",
			ServiceTypes:   []string{"suicide_prevention", "crisis_intervention"},
			Hours:          domain.Hours24x7,
			Languages:      []string{"English", "Spanish"},
			Coverage:       domain.CoverageArea{Type: "national", Codes: []string{"US"}},
			PriorityLevel:  1,
			IsNational:     true,
			IsConfidential: true,
			IsFree:         true,
		},
		{
			ID:             "crisis-text-line",
			Name:           "Crisis Text Line",
			Organization:   "Crisis Text Line Inc.",
			Phone:          "Text HOME to 741741",
			Text:           "HOME to 741741",
			Website:        "https://www.crisistextline.org",
			ServiceTypes:   []string{"general_mental_health", "crisis_intervention"},
			Hours:          domain.Hours24x7,
			Languages:      []string{"English"},
			Coverage:       domain.CoverageArea{Type: "national", Codes: []string{"US"}},
			PriorityLevel:  2,
			IsNational:     true,
			IsConfidential: true,
			IsFree:         true,
		},
		{
			ID:             "trevor-project",
			Name:           "The Trevor Project",
			Organization:   "The Trevor Project",
			Phone:          "1-866-488-7386",
			Text:           "Text START to 678678",
			Website:        "https://www.thetrevorproject.org",
			ServiceTypes:   []string{"suicide_prevention", "lgbtq_youth"},
			Hours:          domain.Hours24x7,
			Languages:      []string{"English"},
			Coverage:       domain.CoverageArea{Type: "national", Codes: []string{"US"}},
			PriorityLevel:  3,
			IsNational:     true,
			IsConfidential: true,
			IsFree:         true,
		},
		{
			ID:             "veterans-crisis-line",
			Name:           "Veterans Crisis Line",
			Organization:   "U.S. Department of Veterans Affairs",
			Phone:          "988 then press 1",
			Text:           "Text 838255",
			Website:        "https://www.veteranscrisisline.net",
			ServiceTypes:   []string{"suicide_prevention", "veterans"},
			Hours:          domain.Hours24x7,
			Languages:      []string{"English"},
			Coverage:       domain.CoverageArea{Type: "national", Codes: []string{"US"}},
			PriorityLevel:  3,
			IsNational:     true,
			IsConfidential: true,
			IsFree:         true,
		},
		{
			ID:             "samhsa-helpline",
			Name:           "SAMHSA National Helpline",
			Organization:   "SAMHSA",
			Phone:          "1-800-662-4357",
			Website:        "https://www.samhsa.gov/find-help/national-helpline",
			ServiceTypes:   []string{"substance_use", "referral"},
			Hours:          domain.Hours24x7,
			Languages:      []string{"English", "Spanish"},
			Coverage:       domain.CoverageArea{Type: "national", Codes: []string{"US"}},
			PriorityLevel:  4,
			IsNational:     true,
			IsConfidential: true,
			IsFree:         true,
		},
	}
}
