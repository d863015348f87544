// Package feed turns a live channel name into a playable HLS URL.
//
// A Resolver walks an ordered list of strategies (GQL playback token exchange
// per client id, the streamlink and yt-dlp helpers, and a direct usher probe),
// giving each its own timeout and validating the result before returning it.
// Nothing is cached; every session start resolves afresh.
package feed
