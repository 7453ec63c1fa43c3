// Package tokenregistry contains the Arkiv asset registry: token identity,
// ownership, creator attribution, royalty terms, approvals, and the burn
// lifecycle.
//
// The module keeps domain/application logic decoupled from runtime/platform
// concerns through ports and adapter composition.
package tokenregistry
