package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/iudanet/pmtool/internal/validation"
	pkgapi "github.com/iudanet/pmtool/pkg/api"
)

func (c *Cli) runProjects(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.runListProjects(ctx)
	}

	switch args[0] {
	case "list":
		return c.runListProjects(ctx)
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("missing project name. Usage: pmctl projects create NAME")
		}
		return c.runCreateProject(ctx, strings.Join(args[1:], " "))
	default:
		return fmt.Errorf("%w: projects %s", ErrUnknownCommand, args[0])
	}
}

func (c *Cli) runListProjects(ctx context.Context) error {
	projects, err := c.apiClient.ListProjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	c.io.Println("=== Projects ===")
	c.io.Println()

	if len(projects) == 0 {
		c.io.Println("No projects found.")
		return nil
	}

	tw := tabwriter.NewWriter(c.io, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tOWNER\tCREATED")
	for _, p := range projects {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, truncate(p.Name, 40), p.OwnerID, p.CreatedAt.Local().Format("2006-01-02"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	c.io.Println()
	c.io.Printf("Total: %d\n", len(projects))
	return nil
}

func (c *Cli) runCreateProject(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if err := validation.ValidateName("name", name); err != nil {
		return err
	}

	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	project, err := c.apiClient.CreateProject(ctx, token, pkgapi.ProjectCreateRequest{Name: name})
	if err != nil {
		return fmt.Errorf("failed to create project: %w", explain(err))
	}

	c.io.Println("✓ Project created")
	return c.render(projectTmpl, project)
}
