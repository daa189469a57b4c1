// Command curvrank runs the curvature re-identification pipeline over a
// catalog of fin images and reports identification accuracy.
//
// Commands:
//
//	curvrank run                 compute missing artifacts, identify, report
//	curvrank evaluate            rewrite reports from stored identification results
//	curvrank status              show workspace progress and the latest run
//	curvrank failures list|clear inspect or reset cached item failures
//	curvrank catalog stats       summarise the catalog
//	curvrank logs [-f]           show or follow curvrank.log
//	curvrank config init|validate
//
// Every command accepts --config to point at a TOML file; otherwise
// ./curvrank.toml and ~/.config/curvrank/config.toml are tried in turn.
package main
