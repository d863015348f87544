// Package titles renders destination titles and descriptions from the source
// broadcast metadata using operator-configured templates.
package titles
