// Package crawler walks a bounded, same-origin slice of a site through the
// browser session, breadth first, honoring robots.txt when asked to.
package crawler
