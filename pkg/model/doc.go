// Package model defines the domain types shared by the aggregation pipeline:
// addresses (parents), devices (children), the fixed device categories and
// the collaborator ports the pipeline consumes.
//
// The remote collection service offers no bulk query and no pagination for
// device listing, so every device category is fetched per address. The ports
// in this package describe exactly those calls; pkg/api implements them over
// HTTP and tests implement them in memory.
package model
