// Package categorize assigns Japanese tax categories to expenses using a
// three-stage pipeline: keyword rules, then past usage of the same store,
// then a model fallback. It always produces a category.
package categorize

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expensebot/internal/domain"
	"github.com/dvloznov/expensebot/internal/infra/sqlite"
)

// FallbackCategory is assigned when every stage comes up empty.
const FallbackCategory = "雑費"

// Rule maps keywords to a tax category. Rules are evaluated in order and
// the first keyword hit wins.
type Rule struct {
	Category string
	Keywords []string
}

// Rules holds the keyword table for Japanese freelancer tax accounts.
var Rules = []Rule{
	{"通信費", []string{"携帯", "Wi-Fi", "プロバイダ", "サーバー", "ドメイン", "SIM"}},
	{"旅費交通費", []string{"電車", "バス", "タクシー", "新幹線", "飛行機", "ETC", "Suica", "PASMO"}},
	{"消耗品費", []string{"文房具", "インク", "USB", "ケーブル", "マウス", "キーボード"}},
	{"接待交際費", []string{"会食", "お中元", "お歳暮", "慶弔", "贈答"}},
	{"会議費", []string{"カフェ", "スタバ", "ドトール", "打ち合わせ"}},
	{"地代家賃", []string{"事務所", "コワーキング", "レンタルオフィス"}},
	{"水道光熱費", []string{"電気", "ガス", "水道", "東京電力", "東京ガス"}},
	{"広告宣伝費", []string{"Google広告", "SNS広告", "名刺", "チラシ"}},
	{"外注費", []string{"デザイン依頼", "開発依頼", "翻訳", "Fiverr", "Lancers"}},
	{"新聞図書費", []string{"書籍", "Kindle", "技術書", "サブスク"}},
	{"研修費", []string{"セミナー", "勉強会", "Udemy", "オンライン講座"}},
	{"雑費", nil},
}

// Categories returns all known category names, in rule order.
func Categories() []string {
	out := make([]string, 0, len(Rules))
	for _, r := range Rules {
		out = append(out, r.Category)
	}
	return out
}

func knownCategory(name string) bool {
	for _, r := range Rules {
		if r.Category == name {
			return true
		}
	}
	return false
}

// History looks up previously categorized expenses for a store.
type History interface {
	ListExpenses(ctx context.Context, filter sqlite.ExpenseFilter) ([]domain.Expense, error)
}

// CategoryPicker asks a model to pick a category for a purchase.
type CategoryPicker interface {
	PickCategory(ctx context.Context, storeName, itemsText string, categories []string) (category string, subcategory *string, err error)
}

type Categorizer struct {
	history History
	picker  CategoryPicker
	log     zerolog.Logger
}

func New(history History, picker CategoryPicker, log zerolog.Logger) *Categorizer {
	return &Categorizer{history: history, picker: picker, log: log}
}

// Categorize resolves the tax category for a purchase. Stages run in order
// and the first hit wins; it never returns an error, falling back to
// FallbackCategory when nothing matches.
func (c *Categorizer) Categorize(ctx context.Context, storeName, itemsText string) (string, *string) {
	if cat, ok := matchRules(storeName, itemsText); ok {
		return cat, nil
	}

	if cat, sub, ok := c.fromHistory(ctx, storeName); ok {
		return cat, sub
	}

	if c.picker != nil {
		cat, sub, err := c.picker.PickCategory(ctx, storeName, itemsText, Categories())
		if err != nil {
			c.log.Warn().Err(err).Str("store", storeName).Msg("model categorization failed")
		} else if knownCategory(cat) {
			c.log.Debug().Str("store", storeName).Str("category", cat).Msg("model categorization")
			return cat, sub
		} else if cat != "" {
			c.log.Warn().Str("store", storeName).Str("category", cat).Msg("model returned unknown category")
		}
	}

	return FallbackCategory, nil
}

// matchRules checks the store name and item names against the keyword
// table. Matching is a case-insensitive substring test, first hit wins.
func matchRules(storeName, itemsText string) (string, bool) {
	store := strings.ToLower(storeName)
	items := strings.ToLower(itemsText)
	for _, r := range Rules {
		for _, kw := range r.Keywords {
			k := strings.ToLower(kw)
			if strings.Contains(store, k) || strings.Contains(items, k) {
				return r.Category, true
			}
		}
	}
	return "", false
}

func (c *Categorizer) fromHistory(ctx context.Context, storeName string) (string, *string, bool) {
	name := strings.TrimSpace(storeName)
	if name == "" || c.history == nil {
		return "", nil, false
	}
	past, err := c.history.ListExpenses(ctx, sqlite.ExpenseFilter{StoreName: name, Limit: 1})
	if err != nil {
		c.log.Warn().Err(err).Str("store", name).Msg("history lookup failed")
		return "", nil, false
	}
	if len(past) == 0 || past[0].Category == "" {
		return "", nil, false
	}
	c.log.Debug().Str("store", name).Str("category", past[0].Category).Msg("history categorization")
	return past[0].Category, past[0].Subcategory, true
}
