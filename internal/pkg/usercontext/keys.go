package usercontext

// Shared Locals/session keys used across controllers and middlewares
const (
	KeyPrincipal = "principal"
	KeyUserEmail = "user_email"
	KeyUserName  = "user_name"
	KeyIsAdmin   = "isAdmin"
)
