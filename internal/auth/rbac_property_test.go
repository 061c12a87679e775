package auth

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/logpeak/logpeak/internal/store"
)

// mockUserStoreRBAC is a simple in-memory implementation for testing.
type mockUserStoreRBAC struct {
	users []*store.User
}

func (m *mockUserStoreRBAC) Create(ctx context.Context, email, password string, role store.Role) (*store.User, error) {
	return nil, nil
}

func (m *mockUserStoreRBAC) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStoreRBAC) GetByID(ctx context.Context, id string) (*store.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStoreRBAC) Authenticate(ctx context.Context, email, password string) (*store.User, error) {
	return nil, store.ErrInvalidCredentials
}

func (m *mockUserStoreRBAC) CountByRole(ctx context.Context, role store.Role) (int, error) {
	count := 0
	for _, u := range m.users {
		if u.Role == role {
			count++
		}
	}
	return count, nil
}

// mockStoreRBAC wraps mockUserStoreRBAC to implement store.Store partially.
type mockStoreRBAC struct {
	userStore *mockUserStoreRBAC
}

func (m *mockStoreRBAC) Users() store.UserStore { return m.userStore }

// Stub implementations for other store methods (not used in these tests).
func (m *mockStoreRBAC) Apps() store.AppStore                                         { return nil }
func (m *mockStoreRBAC) Logs() store.LogStore                                         { return nil }
func (m *mockStoreRBAC) Summaries() store.SummaryStore                                { return nil }
func (m *mockStoreRBAC) Alerts() store.AlertStore                                     { return nil }
func (m *mockStoreRBAC) Metrics() store.MetricsStore                                  { return nil }
func (m *mockStoreRBAC) WithTx(ctx context.Context, fn func(store.Store) error) error { return nil }
func (m *mockStoreRBAC) Ping(ctx context.Context) error                               { return nil }
func (m *mockStoreRBAC) Close() error                                                 { return nil }

// genRBACUserID generates a valid user ID.
func genRBACUserID() gopter.Gen {
	return gen.Identifier().Map(func(s string) string {
		if len(s) == 0 {
			return "user1"
		}
		if len(s) > 36 {
			return s[:36]
		}
		return s
	})
}

// genUsersWithOwner generates a list of users that includes at least one owner.
func genUsersWithOwner() gopter.Gen {
	return gopter.CombineGens(
		genRBACUserID(),
		gen.IntRange(0, 5), // Number of additional users
	).Map(func(vals []interface{}) []*store.User {
		ownerID := vals[0].(string)
		numOthers := vals[1].(int)

		users := make([]*store.User, 0, numOthers+1)
		users = append(users, &store.User{
			ID:    ownerID,
			Email: ownerID + "@example.com",
			Role:  store.RoleOwner,
		})

		for i := 0; i < numOthers; i++ {
			users = append(users, &store.User{
				ID:    ownerID + "_member_" + string(rune('a'+i)),
				Email: "member" + string(rune('a'+i)) + "@example.com",
				Role:  store.RoleMember,
			})
		}
		return users
	})
}

// genUsersWithoutOwner generates a list of users with no owners.
func genUsersWithoutOwner() gopter.Gen {
	return gen.IntRange(0, 5).Map(func(numUsers int) []*store.User {
		users := make([]*store.User, 0, numUsers)
		for i := 0; i < numUsers; i++ {
			users = append(users, &store.User{
				ID:    "member_" + string(rune('a'+i)),
				Email: "member" + string(rune('a'+i)) + "@example.com",
				Role:  store.RoleMember,
			})
		}
		return users
	})
}

func TestOwnerRegistrationBlocksPublicSignup(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("When owner exists, public registration is blocked", prop.ForAll(
		func(users []*store.User) bool {
			mockUsers := &mockUserStoreRBAC{users: users}
			mockSt := &mockStoreRBAC{userStore: mockUsers}
			rbac := NewRBACService(mockSt, nil)

			canRegister, err := rbac.CanRegister(context.Background())
			if err != nil {
				return false
			}

			hasOwner := false
			for _, u := range users {
				if u.Role == store.RoleOwner {
					hasOwner = true
					break
				}
			}

			return canRegister == !hasOwner
		},
		genUsersWithOwner(),
	))

	properties.Property("When no owner exists, public registration is allowed", prop.ForAll(
		func(users []*store.User) bool {
			mockUsers := &mockUserStoreRBAC{users: users}
			mockSt := &mockStoreRBAC{userStore: mockUsers}
			rbac := NewRBACService(mockSt, nil)

			canRegister, err := rbac.CanRegister(context.Background())
			if err != nil {
				return false
			}

			return canRegister == true
		},
		genUsersWithoutOwner(),
	))

	properties.TestingRun(t)
}

// genAdminPermission generates owner-only permissions.
func genAdminPermission() gopter.Gen {
	return gen.OneConstOf(
		PermissionManageApps,
		PermissionManageRetention,
		PermissionPurgeLogs,
	)
}

// genMemberPermission generates permissions that members have.
func genMemberPermission() gopter.Gen {
	return gen.OneConstOf(
		PermissionViewApps,
		PermissionViewLogs,
		PermissionManageAlerts,
	)
}

// genAnyPermission generates any permission.
func genAnyPermission() gopter.Gen {
	return gen.OneConstOf(
		PermissionManageApps,
		PermissionViewApps,
		PermissionViewLogs,
		PermissionManageAlerts,
		PermissionManageRetention,
		PermissionPurgeLogs,
	)
}

func TestRBACPermissionEnforcement(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Members are denied admin permissions", prop.ForAll(
		func(permission Permission) bool {
			err := CheckRolePermission(store.RoleMember, permission)
			return err == ErrPermissionDenied
		},
		genAdminPermission(),
	))

	properties.Property("Members have basic permissions", prop.ForAll(
		func(permission Permission) bool {
			err := CheckRolePermission(store.RoleMember, permission)
			return err == nil
		},
		genMemberPermission(),
	))

	properties.Property("Owners have all permissions", prop.ForAll(
		func(permission Permission) bool {
			err := CheckRolePermission(store.RoleOwner, permission)
			return err == nil
		},
		genAnyPermission(),
	))

	properties.Property("Invalid roles are denied all permissions", prop.ForAll(
		func(permission Permission) bool {
			err := CheckRolePermission(store.Role("invalid"), permission)
			return err == ErrPermissionDenied
		},
		genAnyPermission(),
	))

	properties.TestingRun(t)
}

func TestRBACServicePermissionCheck(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("RBACService matches the role permission table", prop.ForAll(
		func(userID string, role store.Role, permission Permission) bool {
			user := &store.User{
				ID:    userID,
				Email: userID + "@example.com",
				Role:  role,
			}

			mockUsers := &mockUserStoreRBAC{users: []*store.User{user}}
			mockSt := &mockStoreRBAC{userStore: mockUsers}
			rbac := NewRBACService(mockSt, nil)

			err := rbac.CheckPermission(context.Background(), userID, permission)
			expectedErr := CheckRolePermission(role, permission)

			if expectedErr == nil {
				return err == nil
			}
			return err != nil
		},
		genRBACUserID(),
		genRole(),
		genAnyPermission(),
	))

	properties.Property("Unknown users are rejected", prop.ForAll(
		func(userID string) bool {
			mockSt := &mockStoreRBAC{userStore: &mockUserStoreRBAC{}}
			rbac := NewRBACService(mockSt, nil)

			err := rbac.CheckPermission(context.Background(), userID, PermissionViewLogs)
			return err == ErrUserNotFound
		},
		genRBACUserID(),
	))

	properties.TestingRun(t)
}
