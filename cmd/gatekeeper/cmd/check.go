package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/courseforge/gatekeeper/auth"
	"github.com/courseforge/gatekeeper/guard"
	"github.com/courseforge/gatekeeper/internal/config"
	"github.com/courseforge/gatekeeper/rbac"
)

// dashboardTable is the route table of the course-production dashboard.
func dashboardTable(cfg *config.Config) *guard.Table {
	routes := cfg.Routes.Navigation()
	fallback := guard.WithFallback(cfg.Routes.RoleFallback)
	signedIn := guard.RequireAuthenticated(routes)
	byPerm := func(p rbac.Permission) guard.Guard {
		return guard.RequireRole(routes, rbac.RolesFor(p), fallback)
	}

	t := guard.NewTable()
	t.Register(routes.PublicEntry, guard.RequireAnonymous(routes))
	t.Register(routes.Landing, signedIn)
	t.Register("/cursos/*", signedIn, byPerm(rbac.PermViewCourses))
	t.Register("/cursos/nuevo", signedIn, byPerm(rbac.PermManageCourses))
	t.Register("/microcursos/*", signedIn, byPerm(rbac.PermViewMicrocourses))
	t.Register("/equipos/*", signedIn, byPerm(rbac.PermViewTeams))
	t.Register("/ebooks/*", signedIn, byPerm(rbac.PermViewEbooks))
	t.Register("/configuracion/correo/*", signedIn, byPerm(rbac.PermManageEmailSettings))
	t.Register("/admin/*", signedIn, byPerm(rbac.PermManageSessions))
	return t
}

func newCheckCmd(a *app) *cobra.Command {
	var (
		roles      []string
		permission string
	)
	cmd := &cobra.Command{
		Use:   "check ROUTE",
		Short: "Check whether the current session may enter a route",
		Long: `Evaluate the route guards for ROUTE against the stored session. By default
the dashboard route table is used; --role or --permission guard ROUTE with
an explicit role set instead. Exits non-zero when access is denied.`,
		Example: `  gatekeeper check /cursos
  gatekeeper check /reportes --role admin --role coordinator
  gatekeeper check /ebooks/nuevo --permission manage_ebooks`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			route := args[0]
			table := dashboardTable(a.cfg)

			if len(roles) > 0 || permission != "" {
				allowed := auth.RoleSet{}
				if len(roles) > 0 {
					set, err := auth.ParseRoleSet(roles)
					if err != nil {
						return err
					}
					allowed = set
				}
				if permission != "" {
					p, err := rbac.ParsePermission(permission)
					if err != nil {
						return err
					}
					for _, r := range rbac.RolesFor(p).Roles() {
						allowed[r] = struct{}{}
					}
				}
				routes := a.cfg.Routes.Navigation()
				table.Register(route,
					guard.RequireAuthenticated(routes),
					guard.RequireRole(routes, allowed, guard.WithFallback(a.cfg.Routes.RoleFallback)))
			}

			c, err := openClient(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			d := table.Check(route, c.machine.State())
			if d.Allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s\n", route)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "denied: %s (redirect to %s)\n", d.Reason, d.Redirect)
			return fmt.Errorf("access to %s denied", route)
		},
	}
	cmd.Flags().StringSliceVar(&roles, "role", nil, "Role allowed on ROUTE (repeatable)")
	cmd.Flags().StringVar(&permission, "permission", "", "Permission required on ROUTE")
	return cmd
}
