package shared

import "context"

type companyContextKey struct{}

type userContextKey struct{}

// ContextWithCompany stores the active tenant in context.
func ContextWithCompany(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyContextKey{}, companyID)
}

// CompanyFromContext extracts the active tenant from context.
// A missing company is a precondition failure for every keyed operation.
func CompanyFromContext(ctx context.Context) (int64, error) {
	id, _ := ctx.Value(companyContextKey{}).(int64)
	if id == 0 {
		return 0, ErrCompanyRequired
	}
	return id, nil
}

// ContextWithUser stores the acting user in context.
func ContextWithUser(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserFromContext extracts the acting user from context.
func UserFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(userContextKey{}).(int64)
	return id
}
