package handler

// Route pattern constants for chi router registration.
const (
	// RouteRoot is the root path.
	RouteRoot = "/"
	// RouteParamID is the ID parameter pattern.
	RouteParamID = "/{id}"

	// RouteLogin is the login route.
	RouteLogin = "/login"
	// RouteLogout is the logout route.
	RouteLogout = "/logout"
	// RouteSignup is the signup route.
	RouteSignup = "/signup"
	// RouteContact is the contact form route.
	RouteContact = "/contact"

	// RoutePosts is the public posts route.
	RoutePosts = "/posts"
	// RoutePostsID is the public post detail route pattern.
	RoutePostsID = RoutePosts + RouteParamID
	// RouteUsers is the users admin route.
	RouteUsers = "/users"
	// RouteUsersID is the users ID route pattern.
	RouteUsersID = RouteUsers + RouteParamID
	// RouteSettings is the self-service settings route.
	RouteSettings = "/settings"
	// RoutePlanner is the viewer-only study planner route.
	RoutePlanner = "/planner"
)

const (
	redirectAdmin        = "/admin"
	redirectAdminPosts   = redirectAdmin + RoutePosts
	redirectAdminUsers   = redirectAdmin + RouteUsers
	redirectLogin        = RouteLogin
	redirectSettings     = RouteSettings
	redirectAdminPostsID = redirectAdminPosts + "/%d"
	redirectAdminUsersID = redirectAdminUsers + "/%d"
)

// Session keys for flash messaging.
const (
	sessionKeyFlash     = "flash"
	sessionKeyFlashType = "flash_type"
)

// HeaderContentType is the Content-Type HTTP header name.
const HeaderContentType = "Content-Type"
