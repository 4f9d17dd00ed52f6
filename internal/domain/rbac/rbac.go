// Пакет rbac — системная роль пользователя по claims IdP.
// Роль не даёт доступа к dossier: доступ определяется владением
// или явным предоставлением. admin нужен только административным
// операциям, например окончательному удалению гостя.
package rbac

import "slices"

// Системные роли.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// MapToRole возвращает RoleAdmin, если пользователь состоит в одной из
// adminGroups или имеет realm-роль "admin". Иначе RoleUser.
func MapToRole(groups, realmRoles, adminGroups []string) string {
	if slices.Contains(realmRoles, RoleAdmin) {
		return RoleAdmin
	}
	if slices.ContainsFunc(groups, func(g string) bool { return slices.Contains(adminGroups, g) }) {
		return RoleAdmin
	}
	return RoleUser
}

// IsValidRole проверяет, известна ли роль.
func IsValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
