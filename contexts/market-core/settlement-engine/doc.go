// Package settlementengine contains the Arkiv marketplace settlement engine:
// listings, exact-payment purchases, and the atomic three-way split of each
// sale between seller proceeds, creator royalty, and marketplace fee.
//
// The module keeps domain/application logic decoupled from runtime/platform
// concerns through ports and adapter composition.
package settlementengine
