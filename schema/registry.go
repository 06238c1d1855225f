package schema

func col(name string, typ Type, nullable bool, aliases ...string) Column {
	return Column{Name: name, Type: typ, Nullable: nullable, Aliases: aliases}
}

var registry = []*Descriptor{
	{
		Entity: EntityOrder,
		Table:  "orders",
		Columns: []Column{
			col("id", TypeString, false),
			col("variety", TypeString, false),
			col("quantity_in_kg", TypeFloat64, true, "quantityInKg"),
			col("delivery_date", TypeString, true, "deliveryDate"),
			col("price_in_euro", TypeFloat64, true, "priceInEuro"),
		},
	},
	{
		Entity: EntityVariety,
		Table:  "varieties",
		Columns: []Column{
			col("id", TypeString, false),
			col("name", TypeString, false),
			col("description", TypeString, true),
			col("created_at", TypeTimestampMillis, false, "createdAt"),
			col("updated_at", TypeTimestampMillis, false, "updatedAt"),
		},
	},
	{
		Entity: EntityVarietyInventory,
		Table:  "variety_inventory",
		Columns: []Column{
			col("id", TypeString, false),
			col("variety_id", TypeString, false, "varietyId"),
			col("quantity_in_stock", TypeFloat64, false, "quantityInStock"),
			col("unit", TypeString, false),
			col("last_updated", TypeTimestampMillis, false, "lastUpdated"),
			col("created_at", TypeTimestampMillis, false, "createdAt"),
			col("updated_at", TypeTimestampMillis, false, "updatedAt"),
		},
	},
	{
		Entity: EntityMaterial,
		Table:  "materials",
		Columns: []Column{
			col("id", TypeString, false),
			col("name", TypeString, false),
			col("unit", TypeString, false),
			col("quantity_in_stock", TypeFloat64, false, "quantityInStock"),
			col("created_at", TypeTimestampMillis, false, "createdAt"),
			col("updated_at", TypeTimestampMillis, false, "updatedAt"),
		},
	},
	{
		Entity: EntityBatch,
		Table:  "batches",
		Columns: []Column{
			col("id", TypeString, false),
			col("variety_id", TypeString, false, "varietyId"),
			col("status", TypeString, false),
			col("inoculation_date", TypeString, false, "inoculationDate"),
			col("expected_harvest_date", TypeString, false, "expectedHarvestDate"),
			col("actual_harvest_date", TypeString, true, "actualHarvestDate"),
			col("quantity_planted", TypeUint32, false, "quantityPlanted"),
			col("quantity_harvested", TypeFloat64, true, "quantityHarvested"),
			col("notes", TypeString, true),
			col("created_at", TypeTimestampMillis, false, "createdAt"),
			col("updated_at", TypeTimestampMillis, false, "updatedAt"),
		},
	},
	{
		Entity: EntityInventoryTransaction,
		Table:  "inventory_transactions",
		Columns: []Column{
			col("id", TypeString, false),
			col("transaction_type", TypeString, false, "transactionType"),
			col("material_id", TypeString, true, "materialId"),
			col("variety_id", TypeString, true, "varietyId"),
			col("quantity", TypeFloat64, false),
			col("unit", TypeString, false),
			col("reason", TypeString, false),
			col("batch_id", TypeString, true, "batchId"),
			col("order_id", TypeString, true, "orderId"),
			col("created_at", TypeTimestampMillis, false, "createdAt"),
			col("updated_at", TypeTimestampMillis, false, "updatedAt"),
		},
	},
}
