// Command containerctl drives an in-process container for manual smoke
// testing. Its single "demo" command installs two modules with a satisfied
// dependency and resolves them; refresh and start-level operations are not
// exposed. It is not part of the container core.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/containerkit/config"
	"github.com/GoCodeAlone/containerkit/container"
	"github.com/GoCodeAlone/containerkit/container/database"
	"github.com/GoCodeAlone/containerkit/container/hooks"
	"github.com/GoCodeAlone/containerkit/container/resolver"
	"github.com/GoCodeAlone/containerkit/internal/observability"

	containerkit "github.com/GoCodeAlone/containerkit"
)

func newContainer() *container.Container {
	db := database.New()
	db.InstallSystemModule("system:0", &container.ModuleRevision{SymbolicName: "system.bundle"})

	logger := observability.NewNopLogger()
	subject := container.NewEventSubject()
	props := config.StaticProperties{"framework.beginning.startlevel": "1"}
	adaptor := containerkit.NewDefaultAdaptor(logger, subject, props)

	registry := hooks.NewRegistry()
	c := container.New(db, resolver.New(), adaptor, registry)
	return c
}

func main() {
	root := &cobra.Command{
		Use:   "containerctl",
		Short: "Exercise the module container core from the command line.",
	}

	root.AddCommand(&cobra.Command{
		Use:   "demo",
		Short: "Install two modules with a satisfied dependency and resolve them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newContainer()
			defer c.Close()

			b, err := c.Install(nil, "file:b", &container.RevisionBuilder{
				SymbolicName: "B",
				Capabilities: []container.Capability{{
					Namespace:  container.NamespacePackage,
					Attributes: map[string]any{"package": "b.pkg"},
				}},
			}, nil)
			if err != nil {
				return err
			}

			a, err := c.Install(nil, "file:a", &container.RevisionBuilder{
				SymbolicName: "A",
				Requirements: []container.Requirement{{
					Namespace: container.NamespacePackage,
					Matches: func(cap container.Capability) bool {
						return cap.Attributes["package"] == "b.pkg"
					},
				}},
			}, nil)
			if err != nil {
				return err
			}

			if err := c.Resolve(cmd.Context(), []*container.Module{a}, true); err != nil {
				return err
			}
			fmt.Printf("A state=%s B state=%s\n", a.State(), b.State())
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
