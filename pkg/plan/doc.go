// Package plan holds the static Biypod plan table.
//
// There are three tiers in a fixed total order:
//
//	free < starter < creator
//
// Each tier carries a product publishing limit, a usage fee percentage charged
// on orders with customized products, an optional monthly amount and an
// optional trial length. The table is read from an embedded YAML document and
// validated once at startup:
//
//	catalog, err := plan.NewCatalog(ctx, plan.DefaultSource())
//	if err != nil {
//		return err
//	}
//	def, err := catalog.Definition(plan.Starter)
//
// Raw identifiers coming from requests must pass through Parse before use.
package plan
