// Package plan provides the static VPN subscription plan catalog.
//
// Plans are external configuration: the reconciliation core only reads them to
// resolve durations and traffic limits when applying payment events. The
// catalog can be loaded from a JSON or YAML file or declared in code with
// NewStaticSource.
//
// # Usage
//
//	catalog, err := plan.NewCatalog(ctx, plan.NewFileSource("plans.yaml"))
//	if err != nil {
//		// invalid catalog prevents startup
//	}
//	p, err := catalog.Get("basic-30d")
package plan
