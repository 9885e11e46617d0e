package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"cabinet-admin/internal/client"
	"cabinet-admin/internal/form"
	"cabinet-admin/internal/metadata"
	"cabinet-admin/internal/permission"
	"cabinet-admin/internal/store"
)

func newFlags(name string) *pflag.FlagSet {
	return pflag.NewFlagSet("cabinetctl "+name, pflag.ContinueOnError)
}

func runLogin(ctx context.Context, e *env, args []string) error {
	flags := newFlags("login")
	email := flags.String("email", "", "admin email")
	password := flags.String("password", "", "admin password")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("--email and --password are required")
	}
	pair, err := e.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	return e.print(pair)
}

func runRegistry(ctx context.Context, e *env, _ []string) error {
	sections, err := e.client.GetPermissionRegistry(ctx)
	if err != nil {
		return err
	}
	return e.print(sections)
}

func runPresets(ctx context.Context, e *env, _ []string) error {
	presets, err := e.client.GetPresets(ctx)
	if err != nil {
		return err
	}
	return e.print(presets)
}

// runMatrix prints one line per registry section with its selection state.
func runMatrix(ctx context.Context, e *env, args []string) error {
	flags := newFlags("matrix")
	preset := flags.String("preset", "", "start from a permission preset")
	if err := flags.Parse(args); err != nil {
		return err
	}
	var perms []string
	if *preset != "" {
		p, ok := form.Preset(*preset)
		if !ok {
			return fmt.Errorf("unknown preset %q", *preset)
		}
		perms = p
	}
	perms = permission.Normalize(append(perms, flags.Args()...))

	preview, err := e.client.PreviewMatrix(ctx, perms)
	if err != nil {
		return err
	}
	if e.json {
		return e.print(preview)
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SECTION\tSTATE\tSELECTED\tACTIONS")
	for _, row := range preview.Rows {
		cells := make([]string, 0, len(row.Actions))
		for _, a := range row.Actions {
			switch {
			case a.Implied:
				cells = append(cells, a.Action+"*")
			case a.Selected:
				cells = append(cells, a.Action)
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n", row.Section, row.State, row.SelectedCount, row.Total, strings.Join(cells, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(preview.Unknown) > 0 {
		fmt.Fprintf(e.out, "unknown: %s\n", strings.Join(preview.Unknown, ", "))
	}
	return nil
}

func runRoles(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		roles, err := e.client.GetRoles(ctx)
		if err != nil {
			return err
		}
		if e.json {
			return e.print(roles)
		}
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tLEVEL\tUSERS\tSYSTEM\tPERMISSIONS")
		for _, r := range roles {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%t\t%d\n", r.ID, r.Name, r.Level, r.UserCount, r.IsSystem, len(r.Permissions))
		}
		return tw.Flush()
	case "get":
		id, err := argID(args[1:])
		if err != nil {
			return err
		}
		role, err := e.client.GetRole(ctx, id)
		if err != nil {
			return err
		}
		return e.print(role)
	case "create":
		return saveRole(ctx, e, form.NewRoleForm(e.client), args[1:])
	case "update":
		id, err := argID(args[1:])
		if err != nil {
			return err
		}
		role, err := e.client.GetRole(ctx, id)
		if err != nil {
			return err
		}
		return saveRole(ctx, e, form.EditRoleForm(e.client, role), args[2:])
	case "delete":
		id, err := argID(args[1:])
		if err != nil {
			return err
		}
		role, err := e.client.GetRole(ctx, id)
		if err != nil {
			return err
		}
		if err := form.EditRoleForm(e.client, role).Delete(ctx); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "deleted role %d\n", id)
		return nil
	}
	return fmt.Errorf("unknown roles command %q", args[0])
}

// saveRole applies the flags that were given to the draft and submits it.
// --perm toggles, so naming a permission the draft already has removes it.
func saveRole(ctx context.Context, e *env, f *form.RoleForm, args []string) error {
	flags := newFlags("roles")
	name := flags.String("name", "", "role name")
	description := flags.String("description", "", "role description")
	level := flags.Int("level", form.DefaultRoleLevel, "role level")
	color := flags.String("color", "", "palette colour, e.g. #3b82f6")
	preset := flags.String("preset", "", "replace permissions with a preset")
	perms := flags.StringSlice("perm", nil, "toggle a section:action permission (repeatable)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.Changed("name") {
		f.SetName(*name)
	}
	if flags.Changed("description") {
		f.SetDescription(*description)
	}
	if flags.Changed("level") || !f.Editing() {
		f.SetLevel(*level)
	}
	if flags.Changed("color") && !f.SetColor(*color) {
		return fmt.Errorf("color %s is not in the palette %v", *color, metadata.RoleColors)
	}
	if *preset != "" && !f.ApplyPreset(*preset) {
		return fmt.Errorf("unknown preset %q", *preset)
	}
	for _, p := range *perms {
		f.TogglePermission(p)
	}

	role, err := f.Submit(ctx)
	if err != nil {
		return err
	}
	return e.print(role)
}

func runPolicies(ctx context.Context, e *env, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "list":
		policies, err := e.client.GetPolicies(ctx)
		if err != nil {
			return err
		}
		if e.json {
			return e.print(policies)
		}
		tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPRIORITY\tEFFECT\tRESOURCE\tACTION\tACTIVE\tNAME")
		for _, p := range policies {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%t\t%s\n", p.ID, p.Priority, p.Effect, p.Resource, p.Action, p.IsActive, p.Name)
		}
		return tw.Flush()
	case "get":
		id, err := argID(args[1:])
		if err != nil {
			return err
		}
		p, err := e.client.GetPolicy(ctx, id)
		if err != nil {
			return err
		}
		return e.print(p)
	case "create":
		return savePolicy(ctx, e, form.NewPolicyForm(e.client), args[1:])
	case "update":
		id, err := argID(args[1:])
		if err != nil {
			return err
		}
		p, err := e.client.GetPolicy(ctx, id)
		if err != nil {
			return err
		}
		return savePolicy(ctx, e, form.EditPolicyForm(e.client, p), args[2:])
	case "delete":
		id, err := argID(args[1:])
		if err != nil {
			return err
		}
		p, err := e.client.GetPolicy(ctx, id)
		if err != nil {
			return err
		}
		if err := form.EditPolicyForm(e.client, p).Delete(ctx); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "deleted policy %d\n", id)
		return nil
	}
	return fmt.Errorf("unknown policies command %q", args[0])
}

func savePolicy(ctx context.Context, e *env, f *form.PolicyForm, args []string) error {
	flags := newFlags("policies")
	name := flags.String("name", "", "policy name")
	description := flags.String("description", "", "policy description")
	effect := flags.String("effect", string(metadata.EffectAllow), "allow or deny")
	resource := flags.String("resource", "", "registry section, or * for all")
	actions := flags.StringSlice("action", nil, "action to match (repeatable, * for all)")
	priority := flags.Int("priority", 0, "priority, higher wins")
	role := flags.Int64("role", 0, "restrict to holders of this role id, 0 for global")
	window := flags.String("time", "", "time window HH:MM-HH:MM")
	ips := flags.StringSlice("ip", nil, "allowed IP or CIDR (repeatable)")
	rate := flags.Int("rate-limit", 0, "max matches per rate window")
	expr := flags.String("expr", "", "boolean expression over user, section, action, ip, hour, weekday, attrs")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if flags.Changed("name") {
		f.SetName(*name)
	}
	if flags.Changed("description") {
		f.SetDescription(*description)
	}
	if flags.Changed("effect") && !f.SetEffect(metadata.Effect(*effect)) {
		return fmt.Errorf("effect must be allow or deny")
	}
	if flags.Changed("resource") {
		f.SetResource(*resource)
	}
	for _, a := range *actions {
		f.ToggleAction(a)
	}
	if flags.Changed("priority") {
		f.SetPriority(*priority)
	}
	if flags.Changed("role") {
		if *role == 0 {
			f.SetRole(nil)
		} else {
			f.SetRole(role)
		}
	}
	if flags.Changed("time") {
		start, end, ok := strings.Cut(*window, "-")
		if !ok {
			return fmt.Errorf("--time must look like 09:00-18:00")
		}
		f.EnableCondition(metadata.ConditionTimeRange, true)
		f.SetTimeRange(strings.TrimSpace(start), strings.TrimSpace(end))
	}
	if flags.Changed("ip") {
		f.EnableCondition(metadata.ConditionIPWhitelist, true)
		for _, ip := range *ips {
			f.AddIP(ip)
		}
	}
	if flags.Changed("rate-limit") {
		f.EnableCondition(metadata.ConditionRateLimit, *rate > 0)
		f.SetRateLimit(*rate)
	}
	if flags.Changed("expr") {
		f.EnableCondition(metadata.ConditionExpression, *expr != "")
		f.SetExpression(*expr)
	}

	p, err := f.Submit(ctx)
	if err != nil {
		return err
	}
	return e.print(p)
}

func runEvaluate(ctx context.Context, e *env, args []string) error {
	flags := newFlags("evaluate")
	ip := flags.String("ip", "", "client IP")
	at := flags.String("at", "", "evaluation time, RFC 3339")
	roles := flags.Int64Slice("role", nil, "evaluate as holder of these role ids")
	attrs := flags.StringToString("attr", nil, "extra attribute key=value for expressions")
	if err := flags.Parse(args); err != nil {
		return err
	}
	rest := flags.Args()
	if len(rest) != 1 {
		return fmt.Errorf("usage: cabinetctl evaluate [flags] section:action")
	}
	section, action := permission.Permission(rest[0]).Parse()
	if section == "" || action == "" {
		return fmt.Errorf("permission must look like section:action")
	}

	req := client.EvaluateRequest{Section: section, Action: action, IP: *ip}
	if *at != "" {
		t, err := time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		req.At = &t
	}
	if flags.Changed("role") {
		req.RoleIDs = *roles
	}
	if len(*attrs) > 0 {
		req.Attrs = make(map[string]any, len(*attrs))
		for _, k := range sortedKeys(*attrs) {
			req.Attrs[k] = (*attrs)[k]
		}
	}
	decision, err := e.client.Evaluate(ctx, req)
	if err != nil {
		return err
	}
	return e.print(decision)
}

func runAudit(ctx context.Context, e *env, args []string) error {
	flags := newFlags("audit")
	var f store.AuditFilter
	flags.StringVar(&f.Actor, "actor", "", "filter by actor id")
	flags.StringVar(&f.Action, "action", "", "filter by action, e.g. role.update")
	flags.StringVar(&f.Entity, "entity", "", "filter by entity")
	flags.IntVar(&f.Limit, "limit", 50, "max events")
	if err := flags.Parse(args); err != nil {
		return err
	}
	events, err := e.client.ListAudit(ctx, f)
	if err != nil {
		return err
	}
	return e.print(events)
}

func argID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, fmt.Errorf("missing id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}
