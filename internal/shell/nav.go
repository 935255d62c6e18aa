// Package shell derives the navigation chrome of the console from session state: the
// sectioned sidebar, the top-bar breadcrumb, the favorite star and the clock.
package shell

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"secops-console/internal/state"
)

// HomeKey is the route key of "/". It cannot be favorited.
const HomeKey = "home"

// Item is one navigable sidebar entry.
type Item struct {
	Key   string `json:"key"`
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Section is a collapsible sidebar group.
type Section struct {
	Key   state.Section `json:"key"`
	Title string        `json:"title"`
	Open  bool          `json:"open"`
	Items []Item        `json:"items"`
}

type sectionDef struct {
	key   state.Section
	title string
	keys  []string
}

// Fixed route sections, in render order after favorites.
var sectionDefs = []sectionDef{
	{state.SectionMonitoring, "실시간 모니터링", []string{"traffic", "network"}},
	{state.SectionAttack, "공격 유형별 요약", []string{"typeofNetworkTrafficAttack", "typeofSystemLogAttack"}},
	{state.SectionSummary, "공격 유형별 대응 정책", []string{"attackIPBlocking", "isolateInternalInfectedPC", "blockingcertainports"}},
}

const favoritesTitle = "즐겨찾기"

// mainCategoryMap groups a route under its top-bar category.
var mainCategoryMap = map[string]string{
	"traffic":                    "실시간 모니터링",
	"network":                    "실시간 모니터링",
	"typeofNetworkTrafficAttack": "공격 유형별 요약",
	"typeofSystemLogAttack":      "공격 유형별 요약",
	"attackIPBlocking":           "공격 유형별 대응 정책",
	"isolateInternalInfectedPC":  "공격 유형별 대응 정책",
	"blockingcertainports":       "공격 유형별 대응 정책",
}

// labelMap is the page label shown in the top bar and sidebar sections.
var labelMap = map[string]string{
	HomeKey:                      "Main",
	"traffic":                    "네트워크 트래픽 모니터링",
	"network":                    "시스템 로그 모니터링",
	"typeofNetworkTrafficAttack": "네트워크 트래픽 공격 유형",
	"typeofSystemLogAttack":      "시스템 로그 공격 유형",
	"attackIPBlocking":           "외부 공격 IP 차단",
	"isolateInternalInfectedPC":  "내부 감염 PC 관리",
	"blockingcertainports":       "특정 포트 차단",
	"mypage":                     "My Page",
}

// favoriteLabelMap labels entries in the favorites section. It also covers the routes of
// the earlier preview/chart layout so old favorites still render with a name.
var favoriteLabelMap = map[string]string{
	"preview":                    "Preview",
	"chart":                      "Chart",
	"traffic":                    "트래픽 모니터링",
	"network":                    "시스템 네트워크 모니터링",
	"typeofNetworkTrafficAttack": "네트워크 트래픽 공격 유형",
	"typeofSystemLogAttack":      "시스템 로그 공격 유형",
	"attackIPBlocking":           "외부 공격 IP 차단",
	"isolateInternalInfectedPC":  "내부 감염 PC 격리",
	"blockingcertainports":       "특정 포트 차단",
	"mypage":                     "My Page",
}

// Label returns the top-bar label for a route key, or "" if it has none.
func Label(key string) string { return labelMap[key] }

// FavoriteLabel returns the favorites-section label for key, falling back to key itself.
func FavoriteLabel(key string) string {
	if l, ok := favoriteLabelMap[key]; ok {
		return l
	}
	return key
}

// KnownRoute reports whether key names a routed page.
func KnownRoute(key string) bool {
	_, ok := labelMap[key]
	return ok
}

// Abbreviate returns the first character of label, upper-cased.
func Abbreviate(label string) string {
	r, _ := utf8.DecodeRuneInString(label)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// Sidebar is the rendered sidebar model.
type Sidebar struct {
	Collapsed bool      `json:"collapsed"`
	Brand     string    `json:"brand"`
	Sections  []Section `json:"sections"`
}

// BuildSidebar renders the sidebar for the given App state and favorites. Section items
// are listed even when a section is closed; Open tells the client whether to show them.
// A collapsed sidebar abbreviates every label.
func BuildSidebar(st state.AppState, favorites []string) Sidebar {
	display := func(l string) string {
		if st.IsSidebarCollapsed {
			return Abbreviate(l)
		}
		return l
	}

	sb := Sidebar{Collapsed: st.IsSidebarCollapsed, Brand: "A_P"}
	if st.IsSidebarCollapsed {
		sb.Brand = "A"
	}

	favs := Section{
		Key:   state.SectionFavorites,
		Title: favoritesTitle,
		Open:  st.OpenSections.Favorites,
		Items: make([]Item, 0, len(favorites)),
	}
	for _, key := range favorites {
		favs.Items = append(favs.Items, Item{Key: key, Path: "/" + key, Label: display(FavoriteLabel(key))})
	}
	sb.Sections = append(sb.Sections, favs)

	for _, def := range sectionDefs {
		sec := Section{Key: def.key, Title: def.title, Open: st.OpenSections.IsOpen(def.key)}
		for _, key := range def.keys {
			sec.Items = append(sec.Items, Item{Key: key, Path: "/" + key, Label: display(labelMap[key])})
		}
		sb.Sections = append(sb.Sections, sec)
	}
	return sb
}

// RouteKey extracts the route key from a URL path: its first segment, or HomeKey for "/".
func RouteKey(path string) string {
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			return seg
		}
	}
	return HomeKey
}

// Breadcrumb is the top-bar trail for the current route.
type Breadcrumb struct {
	Key      string `json:"key"`
	Category string `json:"category,omitempty"`
	Page     string `json:"page"`
}

// BreadcrumbFor derives the breadcrumb from a URL path. Unmapped segments show the raw
// segment with its first letter capitalised and no category.
func BreadcrumbFor(path string) Breadcrumb {
	key := RouteKey(path)
	page, ok := labelMap[key]
	if !ok {
		page = capitalize(key)
	}
	return Breadcrumb{Key: key, Category: mainCategoryMap[key], Page: page}
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// CanFavorite reports whether the favorite star is enabled on route key.
func CanFavorite(key string) bool {
	return key != "" && key != HomeKey
}
