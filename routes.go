package lifecycle

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Routes describes the navigation map the access controller guards.
// Public entries ending in "/*" allow the whole subtree.
type Routes struct {
	Home           string   `yaml:"home" json:"home"`
	Login          string   `yaml:"login" json:"login"`
	Register       string   `yaml:"register" json:"register"`
	VerifyEmail    string   `yaml:"verify_email" json:"verify_email"`
	ForgotPassword string   `yaml:"forgot_password" json:"forgot_password"`
	ResetPassword  string   `yaml:"reset_password" json:"reset_password"`
	AdminPrefix    string   `yaml:"admin_prefix" json:"admin_prefix"`
	AccountPrefix  string   `yaml:"account_prefix" json:"account_prefix"`
	Public         []string `yaml:"public" json:"public"`
	ResumeParam    string   `yaml:"resume_param" json:"resume_param"`
}

// DefaultRoutes returns the stock navigation map.
func DefaultRoutes() Routes {
	return Routes{
		Home:           "/",
		Login:          "/login",
		Register:       "/register",
		VerifyEmail:    "/verify-email",
		ForgotPassword: "/forgot-password",
		ResetPassword:  "/reset-password",
		AdminPrefix:    "/admin",
		AccountPrefix:  "/account",
		Public:         []string{"/about", "/contact", "/privacy", "/terms"},
		ResumeParam:    "next",
	}
}

var absolutePath = regexp.MustCompile(`^/[^\s]*$`)

// Validate implements validation.Validatable.
func (r Routes) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Home, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.Login, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.Register, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.VerifyEmail, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.ForgotPassword, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.ResetPassword, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.AdminPrefix, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.AccountPrefix, validation.Required, validation.Match(absolutePath)),
		validation.Field(&r.Public, validation.By(func(value any) error {
			entries, _ := value.([]string)
			for _, entry := range entries {
				if err := validation.Validate(entry, validation.Match(absolutePath)); err != nil {
					return fmt.Errorf("%s: %w", entry, err)
				}
			}
			return nil
		})),
		validation.Field(&r.ResumeParam, validation.Required),
	)
}

// Decision is the outcome of a navigation attempt. Resume is the originally
// requested location when the user is sent to log in first.
type Decision struct {
	Path       string `json:"path"`
	Allow      bool   `json:"allow"`
	RedirectTo string `json:"redirect_to,omitempty"`
	Resume     string `json:"resume,omitempty"`
}

func allow(p string) Decision {
	return Decision{Path: p, Allow: true}
}

func redirect(p, to string) Decision {
	return Decision{Path: p, RedirectTo: to}
}

// Decide maps a requested location to allow or redirect for session. It is
// pure and never fails: anything it does not know goes home.
func Decide(requested string, session Session, routes Routes) Decision {
	p, query := normalizePath(requested)
	status := session.Status

	if underPrefix(p, routes.AdminPrefix) {
		if status.IsAdmin() {
			return allow(p)
		}
		return redirect(p, cleanRoute(routes.Home))
	}

	if underPrefix(p, routes.AccountPrefix) {
		if status.IsAuthenticated() {
			return allow(p)
		}
		resume := p
		if query != "" {
			resume += "?" + query
		}
		d := redirect(p, loginRedirect(routes, resume))
		d.Resume = resume
		return d
	}

	if routes.isAuthFlow(p) {
		if status.IsAuthenticated() {
			return redirect(p, cleanRoute(routes.Home))
		}
		return allow(p)
	}

	if p == cleanRoute(routes.Home) || routes.isPublic(p) {
		return allow(p)
	}

	return redirect(p, cleanRoute(routes.Home))
}

// RouteAccessController applies Decide with a fixed navigation map.
type RouteAccessController struct {
	routes Routes
}

// NewRouteAccessController returns a controller for routes.
func NewRouteAccessController(routes Routes) *RouteAccessController {
	return &RouteAccessController{routes: routes}
}

// Decide evaluates requested against session.
func (c *RouteAccessController) Decide(requested string, session Session) Decision {
	return Decide(requested, session, c.routes)
}

// ResumeTarget extracts the post-login location from a login URL produced by
// the controller. Only local absolute paths are returned.
func (r Routes) ResumeTarget(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil {
		return ""
	}
	return safeResume(u.Query().Get(r.ResumeParam))
}

func (r Routes) isAuthFlow(p string) bool {
	for _, route := range []string{r.Login, r.Register, r.VerifyEmail, r.ForgotPassword, r.ResetPassword} {
		if p == cleanRoute(route) {
			return true
		}
	}
	return false
}

func (r Routes) isPublic(p string) bool {
	for _, entry := range r.Public {
		if prefix, ok := strings.CutSuffix(entry, "/*"); ok {
			if underPrefix(p, prefix) {
				return true
			}
			continue
		}
		if p == cleanRoute(entry) {
			return true
		}
	}
	return false
}

func loginRedirect(routes Routes, resume string) string {
	login := cleanRoute(routes.Login)
	if resume == "" || routes.ResumeParam == "" {
		return login
	}
	return login + "?" + url.Values{routes.ResumeParam: {resume}}.Encode()
}

// normalizePath strips the fragment, cleans the path and drops trailing
// slashes. The raw query is returned separately.
func normalizePath(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	var query string
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
		query = u.RawQuery
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return cleanRoute(raw), query
}

func cleanRoute(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func underPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	prefix = cleanRoute(prefix)
	if prefix == "/" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// safeResume keeps target only when it stays on this origin. Browsers treat
// a backslash as a slash and drop tabs and newlines, so "/\\host" and
// "/\t/host" are protocol relative too.
func safeResume(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return ""
	}
	if strings.ContainsFunc(target, func(r rune) bool {
		return r == '\\' || r < 0x20 || r == 0x7f
	}) {
		return ""
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return target
}
