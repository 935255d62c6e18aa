package shell

import (
	"unicode"
	"unicode/utf8"

	"secops-console/internal/state"
)

// Navigation targets of the user menu.
const (
	ProfilePath = "/mypage"
	LoginPath   = "/login"
)

// MenuAction is a user-menu entry.
type MenuAction string

const (
	MenuProfile MenuAction = "profile"
	MenuLogout  MenuAction = "logout"
)

// TopNav is the rendered top-bar model.
type TopNav struct {
	Breadcrumb       Breadcrumb `json:"breadcrumb"`
	IsFavorite       bool       `json:"is_favorite"`
	CanFavorite      bool       `json:"can_favorite"`
	SidebarCollapsed bool       `json:"sidebar_collapsed"`
	UserInitial      string     `json:"user_initial"`
	Greeting         string     `json:"greeting,omitempty"`
	HasUnread        bool       `json:"has_unread"`
	UnreadCount      int        `json:"unread_count"`
	NotificationOpen bool       `json:"notification_open"`
	Clock            string     `json:"clock"`
}

// BuildTopNav renders the top bar for path.
func BuildTopNav(path string, st state.AppState, favorites []string, clock string) TopNav {
	bc := BreadcrumbFor(path)
	nav := TopNav{
		Breadcrumb:       bc,
		CanFavorite:      CanFavorite(bc.Key),
		SidebarCollapsed: st.IsSidebarCollapsed,
		UserInitial:      "U",
		HasUnread:        st.HasUnread,
		UnreadCount:      st.UnreadCount,
		NotificationOpen: st.IsNotificationOpen,
		Clock:            clock,
	}
	for _, f := range favorites {
		if f == bc.Key {
			nav.IsFavorite = true
			break
		}
	}
	if st.User != nil && st.User.Name != "" {
		r, _ := utf8.DecodeRuneInString(st.User.Name)
		nav.UserInitial = string(unicode.ToUpper(r))
		nav.Greeting = st.User.Name + " 님 안녕하세요 ^^"
	}
	return nav
}

// MenuTarget is where the client navigates after a user-menu action.
func MenuTarget(a MenuAction) (string, bool) {
	switch a {
	case MenuProfile:
		return ProfilePath, true
	case MenuLogout:
		return LoginPath, true
	}
	return "", false
}
