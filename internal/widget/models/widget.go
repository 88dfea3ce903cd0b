package models

// Table is the widgets table name.
const Table = "widgets"

// Widget 导出测试使用的最小实体
type Widget struct {
	ID   uint   `gorm:"primarykey" json:"id"`
	Name string `gorm:"size:64;not null" json:"name"`
}

// TableName 指定表名
func (Widget) TableName() string {
	return Table
}

// WidgetColumns lists the exported columns in document order.
var WidgetColumns = []string{"id", "name"}

// WidgetResponse is the typed view of an exported {"widgets": [...]} document.
type WidgetResponse struct {
	Widgets []Widget `json:"widgets"`
}
