package moodle

type SiteInfo struct {
	SiteName    string `json:"sitename"`
	UserID      int64  `json:"userid"`
	Username    string `json:"username"`
	Fullname    string `json:"fullname"`
	IsSiteAdmin bool   `json:"userissiteadmin"`
}

// UserInfo is the logged-in user as the web app sees it.
type UserInfo struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Fullname string   `json:"fullname"`
	Roles    []string `json:"roles"`
}

type AuthResult struct {
	Token string
	User  UserInfo
}

type Course struct {
	ID          int64  `json:"id"`
	ShortName   string `json:"shortname"`
	FullName    string `json:"fullname"`
	DisplayName string `json:"displayname,omitempty"`
	Summary     string `json:"summary,omitempty"`
	Visible     *int   `json:"visible,omitempty"`
}

type Section struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Summary string   `json:"summary"`
	Visible *int     `json:"visible,omitempty"`
	Modules []Module `json:"modules"`
}

type Module struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	ModName     string `json:"modname"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Visible     *int   `json:"visible,omitempty"`
}

// hidden reports an explicit visible=0; a missing flag counts as visible.
func hidden(visible *int) bool { return visible != nil && *visible == 0 }
