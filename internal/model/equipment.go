package model

// EquipmentStatus is the availability reported by the equipment catalog.
type EquipmentStatus string

const (
    EquipmentAvailable   EquipmentStatus = "available"
    EquipmentInUse       EquipmentStatus = "in_use"
    EquipmentMaintenance EquipmentStatus = "maintenance"
    EquipmentOffline     EquipmentStatus = "offline"
)

// Equipment is the subset of a catalog entry the reservation engine reads.
type Equipment struct {
    ID     string          `json:"id"`
    Name   string          `json:"name"`
    Status EquipmentStatus `json:"status"`
}
