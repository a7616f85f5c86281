/*
Package bbcode converts bracket markup ("BBCode", e.g. [b]bold[/b]) into HTML
through an ordered table of pattern substitution rules.

It is a text transformation engine, not a parser. Each rule is a regular
expression paired with a template; the Transformer applies every rule in table
order, and each rule is applied repeatedly against the whole text until it no
longer matches before the next rule starts. Templates reference the capture
groups of their pattern with positional %(0)s, %(1)s, ... placeholders.

Text between [ignore] and [/ignore] can be passed through untouched with
TransformSkippingVerbatim.

The package does NOT escape HTML. Untrusted input has to be escaped by the
caller before it is run through a Transformer, otherwise the translated markup
would be escaped along with it.
*/
package bbcode
